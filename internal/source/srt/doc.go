// Package srt implements an SRT (Secure Reliable Transport) source carrying
// H.264 in MPEG-TS. In listener mode it accepts one publisher at a time;
// in caller mode it pulls from a remote SRT listener.
package srt
