package server

import (
	"bufio"
	"errors"
	"io"

	"github.com/yourusername/uvhttp/pkg/uvhttp/conn"
	"github.com/yourusername/uvhttp/pkg/uvhttp/http11"
	"github.com/yourusername/uvhttp/pkg/uvhttp/websocket"
)

// runWebSocket takes over a connection after a successful 101 response: it
// is the conn.Upgrader this server wires into every conn.Conn. It reads
// frames until a close frame, a protocol error, or the underlying stream
// ends, dispatching to the matched table's handlers and auto-answering
// pings (handled inside Reassembler.Feed).
func (s *Server) runWebSocket(transport conn.Transport, br *bufio.Reader, req *http11.Request, table *WSHandlerTable, name string) error {
	wsConn := websocket.NewConn(transport)

	maxPayload := table.MaxMessagePayload
	if maxPayload == 0 {
		maxPayload = websocket.DefaultMaxMessagePayload
	}
	reassembler := websocket.NewReassembler(maxPayload)

	s.registerWSConn(name, wsConn)
	defer s.unregisterWSConn(name, wsConn)

	if table.OnConnect != nil {
		table.OnConnect(wsConn, req)
	}

	for {
		frame, err := websocket.ReadFrame(br, maxPayload)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if table.OnError != nil {
				table.OnError(wsConn, err)
			}
			wsConn.Close(statusForWSError(err), "protocol error")
			return err
		}

		if err := reassembler.Feed(frame, &table.Handlers, wsConn); err != nil {
			if table.OnError != nil {
				table.OnError(wsConn, err)
			}
			wsConn.Close(statusForWSError(err), "")
			return err
		}

		if frame.Opcode == websocket.OpcodeClose {
			wsConn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
	}
}

func statusForWSError(err error) int {
	switch err {
	case websocket.ErrMessageTooBig:
		return websocket.StatusMessageTooBig
	case websocket.ErrInvalidUTF8:
		return websocket.StatusInvalidPayload
	default:
		return websocket.StatusProtocolError
	}
}
