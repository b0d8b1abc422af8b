package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DialTimeout bounds connection establishment; past it the caller falls
// back to simulation mode.
const DialTimeout = 4 * time.Second

// Live is the websocket bridge to the remote controller process.
type Live struct {
	Dispatcher

	conn    *websocket.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens the duplex connection and starts the read pump. An error
// (including handshake timeout) leaves nothing running.
func Dial(url string) (*Live, error) {
	dialer := websocket.Dialer{HandshakeTimeout: DialTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	l := &Live{conn: conn, closed: make(chan struct{})}
	go l.readPump()
	logrus.Infof("bridge: connected to %s", url)
	return l, nil
}

// readPump is the single delivery queue: frames are dispatched to
// listeners in arrival order, on this goroutine.
func (l *Live) readPump() {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.closed:
			default:
				logrus.WithError(err).Warn("bridge: connection lost")
			}
			return
		}
		l.dispatch(data)
	}
}

// Send fires a command at the remote controller. There is no response to
// wait for; a failed write is logged and dropped.
func (l *Live) Send(c Command) {
	select {
	case <-l.closed:
		logrus.Debugf("bridge: send after close dropped (%T)", c)
		return
	default:
	}
	data, err := Marshal(c)
	if err != nil {
		logrus.WithError(err).Warn("bridge: command marshal failed")
		return
	}
	l.writeMu.Lock()
	err = l.conn.WriteMessage(websocket.TextMessage, data)
	l.writeMu.Unlock()
	if err != nil {
		logrus.WithError(err).Warn("bridge: send failed")
	}
}

func (l *Live) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return l.conn.Close()
}
