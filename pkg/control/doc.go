// Package control turns light descriptors into device commands and sends
// them over a session.
//
// Each descriptor expands into a short, fixed command sequence:
//
//	main off          set_power["off","smooth",500]
//	main on           set_power["on","smooth",500,<mode>]
//	                  set_bright[<brightness>,"smooth",500]
//	ambient off       bg_set_power["off","smooth",500]
//	ambient on        bg_set_power["on","smooth",500]
//	                  bg_set_hsv[<hue>,<saturation>,"smooth",500]
//	                  bg_set_bright[<value>,"smooth",500]
//
// The main light is always handled before the ambient light. Commands are
// sent one at a time; each waits for the previous response.
package control
