package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"saveher-server/middleware"
	"saveher-server/models"
	"saveher-server/realtime"
	"saveher-server/services"
	"saveher-server/utils/errors"
)

// WSHandler owns the realtime endpoint: it authenticates the handshake,
// registers the session with the hub, and routes inbound client actions
// (trigger SOS, cancel SOS, location pings) to the services.
type WSHandler struct {
	hub         *realtime.Hub
	sosService  *services.SOSService
	userService *services.UserService
	jwtSecret   string
	upgrader    websocket.Upgrader
	log         *zap.SugaredLogger
}

func NewWSHandler(hub *realtime.Hub, sosService *services.SOSService, userService *services.UserService,
	jwtSecret string, log *zap.SugaredLogger) *WSHandler {
	return &WSHandler{
		hub:         hub,
		sosService:  sosService,
		userService: userService,
		jwtSecret:   jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin is already policed by the CORS layer for the
			// REST routes; the websocket handshake carries its own token.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// inboundMessage is everything a client can send over the socket.
type inboundMessage struct {
	Type        string              `json:"type"`
	Category    string              `json:"category,omitempty"`
	Description string              `json:"description,omitempty"`
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
}

const (
	msgOnSOS          = "On_SOS"
	msgSOSCancel      = "SOS_Cancel"
	msgLocationUpdate = "Location_Update"
)

// ServeWS upgrades the connection. The bearer token travels as a query
// parameter because browser websocket clients cannot set headers.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.ParseUserToken(r.URL.Query().Get("token"), h.jwtSecret)
	if err != nil {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := h.hub.Register(conn, userID)
	h.broadcastRoster()

	go func() {
		client.ReadLoop(func(raw []byte) {
			h.handleMessage(client, raw)
		})
		h.broadcastRoster()
	}()
}

func (h *WSHandler) handleMessage(client *realtime.Client, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		client.Send(realtime.Event{Type: "Error", Data: map[string]string{"err": "malformed message"}})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ctx = middleware.WithUserID(ctx, client.UserID)

	switch msg.Type {
	case msgOnSOS:
		alert, err := h.sosService.Trigger(ctx, client.UserID, msg.Category, msg.Description, msg.Coordinates)
		if err != nil {
			client.Send(realtime.Event{Type: "On_SOS_Result", Data: map[string]string{"err": err.Error()}})
			return
		}
		client.Send(realtime.Event{Type: "On_SOS_Result", Data: map[string]any{
			"sos_id": alert.ID,
			"name":   alert.OwnerName,
			"coordinates": models.Coordinates{
				Latitude:  alert.Location.Latitude(),
				Longitude: alert.Location.Longitude(),
			},
			"time": alert.CreatedAt.Format(time.RFC3339),
		}})

	case msgSOSCancel:
		alert, err := h.sosService.Cancel(ctx, client.UserID)
		if err != nil {
			client.Send(realtime.Event{Type: "SOS_Cancel_Result", Data: map[string]string{"err": err.Error()}})
			return
		}
		client.Send(realtime.Event{Type: "SOS_Cancel_Result", Data: map[string]string{"name": alert.OwnerName}})

	case msgLocationUpdate:
		if msg.Coordinates == nil {
			client.Send(realtime.Event{Type: "Location_Update_Result", Data: map[string]string{"err": "coordinates required"}})
			return
		}
		if err := h.userService.LocationPing(ctx, client.UserID, *msg.Coordinates); err != nil {
			client.Send(realtime.Event{Type: "Location_Update_Result", Data: map[string]string{"err": err.Error()}})
			return
		}

	default:
		h.log.Debugw("unknown websocket message", "user_id", client.UserID, "type", msg.Type)
	}
}

// broadcastRoster tells every online user the set of connected users
// changed, so map screens can refresh their live markers.
func (h *WSHandler) broadcastRoster() {
	online := h.hub.OnlineUsers()
	for _, id := range online {
		h.hub.SendToUser(id, realtime.Event{Type: realtime.EventUpdateActiveUsers, Data: map[string]int{"online": len(online)}})
	}
}
