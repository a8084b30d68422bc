//go:build !linux
// +build !linux

package staticfile

import (
	"io"
	"net"
	"os"
)

// sendFile falls back to io.Copy on platforms without a wired sendfile(2)
// equivalent, keeping the same signature as the Linux zero-copy path.
func sendFile(conn net.Conn, file *os.File, offset, count int64) (int64, error) {
	return io.Copy(conn, io.NewSectionReader(file, offset, count))
}

func canUseSendFile(conn net.Conn) bool {
	return false
}
