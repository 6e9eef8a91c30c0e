// Package ytdlp wraps the yt-dlp command line.
//
// It lists a channel's videos for intake and downloads single videos for the
// download stage. The Client satisfies stage.Downloader; local-path sources
// are verified on disk and returned without invoking yt-dlp.
package ytdlp
