// Package descriptor parses the light-state descriptors accepted on the
// command line into validated device parameters.
//
// # Main Light
//
// The main light accepts one of:
//
//	off           power off
//	X             0..100 is moonlight at X%, 101..200 is normal at (X-100)%
//	moonlight:V   moonlight mode at V% (0..100)
//	normal:V      normal mode at V% (0..100)
//
// # Ambient Light
//
// The ambient (background) light accepts "off" or an H,S,V triple with
// hue in 0..359 and saturation/value in 0..100.
package descriptor
