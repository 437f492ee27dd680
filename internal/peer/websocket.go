package peer

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/danmuck/deskwire/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Mount adds the websocket endpoint and a stats route to router.
func (p *Peer) Mount(router gin.IRoutes) {
	router.GET("/ws", p.handleWebSocket)
	router.GET("/peer/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, p.Stats())
	})
}

func (p *Peer) handleWebSocket(c *gin.Context) {
	session, err := transport.ParseSessionID(c.Query("session"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	clientID, _ := strconv.ParseUint(c.Query("client"), 10, 32)
	width, _ := strconv.ParseUint(c.Query("width"), 10, 32)
	height, _ := strconv.ParseUint(c.Query("height"), 10, 32)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("peer.handleWebSocket upgrade failed")
		return
	}
	defer conn.Close()

	l := p.newLink()
	defer p.dropLink()
	l.setSession(session, uint32(clientID))
	l.resize(uint32(width), uint32(height))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var writeMu sync.Mutex
	write := func(buf []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.BinaryMessage, buf)
	}
	if p.cfg.PingInterval > 0 {
		go p.pingLoop(ctx, l, write)
	}

	for {
		kind, buf, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("peer websocket link ended")
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		replies, err := l.handle(buf)
		if err != nil {
			log.Warn().Err(err).Msg("peer.handleWebSocket instruction rejected")
			continue
		}
		for _, reply := range replies {
			if err := write(reply); err != nil {
				return
			}
		}
	}
}
