package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	hoverWriteWait = 10 * time.Second
	hoverReadLimit = 4 * 1024
)

// hoverQuery is one pointer position sent by the client.
type hoverQuery struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// hoverReply answers a query. Region is empty over the sea.
type hoverReply struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Region string  `json:"region"`
	Name   string  `json:"name,omitempty"`
}

// handleHover upgrades to a websocket and answers one reply per query until
// the client goes away.
func (h *Handler) handleHover(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		h.logf("hover accept: %v", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(hoverReadLimit)

	h.Metrics.HoverClientDelta(1)
	defer h.Metrics.HoverClientDelta(-1)

	ctx := r.Context()
	for {
		var q hoverQuery
		if err := wsjson.Read(ctx, conn, &q); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					h.logf("hover read: %v", err)
				}
			}
			return
		}
		if math.IsNaN(q.X) || math.IsNaN(q.Y) {
			conn.Close(websocket.StatusUnsupportedData, "coordinates must be numbers")
			return
		}

		id, found, hit := h.hover.Resolve(q.X, q.Y, h.Data.RegionAt)
		h.Metrics.ObserveHoverCache(hit)
		h.Metrics.ObserveLookup("hover", found)

		reply := hoverReply{X: q.X, Y: q.Y, Region: id}
		if reg, ok := h.Data.Region(id); ok {
			reply.Name = reg.Name
		}
		writeCtx, cancel := context.WithTimeout(ctx, hoverWriteWait)
		err := wsjson.Write(writeCtx, conn, reply)
		cancel()
		if err != nil {
			h.logf("hover write: %v", err)
			return
		}
	}
}
