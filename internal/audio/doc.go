// Package audio plays mp3 artifacts on the system's audio output using
// oto/v3, decoding with go-mp3.
package audio
