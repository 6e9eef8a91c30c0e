// Package transcription runs a command-line transcriber against downloaded
// media and leaves a markdown transcript beside it.
//
// The command is configured as a binary plus argument template; "{input}"
// is replaced with the media path and "{output}" with the transcript path.
// Tools that write the transcript file themselves are supported as well as
// tools that print a JSON document ({"segments": [...], "summary": ...}) on
// stdout, which is rendered into the same markdown layout. An existing
// transcript is reused without running the command when reuse is enabled.
package transcription
