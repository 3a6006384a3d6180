// Package cli implements the interactive gophvault shell.
//
// The shell reads one command per line. While locked it accepts init,
// unlock, bio, code, words, reset, help and exit. Once unlocked it adds
// entry editing (list, show, addlogin, addnote, addcard, delete) and
// security settings (passwd, 2fa, recovery, duress, biometric, autolock).
//
// Passwords are read without echo when stdin is a terminal and as plain
// lines otherwise, so the shell can be scripted.
package cli
