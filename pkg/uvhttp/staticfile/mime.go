package staticfile

import "strings"

// mimeTable is the small fixed extension->content-type lookup spec.md §4.6
// calls for; CLI-level MIME databases are explicitly out of scope.
var mimeTable = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".xml":  "application/xml",
	".txt":  "text/plain; charset=utf-8",
	".mp4":  "video/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".woff": "font/woff",
	".woff2": "font/woff2",
	".ttf":  "font/ttf",
	".eot":  "application/vnd.ms-fontobject",
}

// mimeFor derives a content type from a file's extension, defaulting to
// application/octet-stream for unrecognized extensions.
func mimeFor(path string) string {
	ext := path
	if idx := strings.LastIndexByte(path, '.'); idx >= 0 {
		ext = strings.ToLower(path[idx:])
	} else {
		ext = ""
	}
	if ct, ok := mimeTable[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
