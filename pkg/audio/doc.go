// Package audio holds the PCM plumbing shared by capture and playback:
// sample format conversion, device format normalisation and the base64
// transport encoding used inside JSON media chunks.
package audio
