package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CadenzaLabs/NarrateKit/engine/types"
)

// Status connection limits.
const (
	statusWriteWait  = 10 * time.Second
	statusPongWait   = 60 * time.Second
	statusPingPeriod = (statusPongWait * 9) / 10
	statusReadLimit  = 512
	clientSendBuffer = 32
)

// StatusFrame is one JSON message pushed to connected status clients.
// Fields beyond Event, JobID, and Timestamp are filled per event type.
type StatusFrame struct {
	Event     EventType `json:"event"`
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`

	// Running reports the job's scheduling flag after the event took
	// effect. Unit frames always report true: a run is in progress.
	Running  bool            `json:"running"`
	Progress *types.Progress `json:"progress,omitempty"`

	UnitID       string           `json:"unit_id,omitempty"`
	UnitStatus   types.UnitStatus `json:"unit_status,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Attempt      int              `json:"attempt,omitempty"`
}

// ProgressBroadcaster fans engine events out to WebSocket clients as JSON
// status frames. Clients are read-only consumers: inbound messages are
// discarded and nothing flows back into scheduling.
type ProgressBroadcaster struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*statusClient]struct{}
	closed  bool

	unsubscribe func()
}

// statusClient is one connected websocket with its outbound frame queue.
type statusClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewProgressBroadcaster creates a broadcaster subscribed to every event
// on the bus. Call Close to detach it and disconnect its clients.
func NewProgressBroadcaster(bus *EventBus) *ProgressBroadcaster {
	b := &ProgressBroadcaster{
		upgrader: websocket.Upgrader{
			// Frames are read-only status for a locally served UI;
			// all origins are accepted.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*statusClient]struct{}),
	}
	b.unsubscribe = bus.SubscribeAll(b.onEvent)
	return b
}

// ServeHTTP upgrades the request and streams status frames until the
// client disconnects or the broadcaster closes.
func (b *ProgressBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return
	}

	client := &statusClient{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	b.clients[client] = struct{}{}
	b.mu.Unlock()

	go b.writePump(client)
	b.readPump(client)
}

// ClientCount reports the number of connected status clients.
func (b *ProgressBroadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close detaches the broadcaster from the bus and disconnects all clients.
func (b *ProgressBroadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	clients := make([]*statusClient, 0, len(b.clients))
	for client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.Unlock()

	b.unsubscribe()

	for _, client := range clients {
		b.drop(client)
	}
}

// onEvent translates a bus event into a frame and queues it to every
// connected client. Slow clients drop frames rather than stall dispatch.
func (b *ProgressBroadcaster) onEvent(event *Event) {
	data, err := json.Marshal(frameFor(event))
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// drop removes the client and closes its send queue exactly once.
func (b *ProgressBroadcaster) drop(client *statusClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; !ok {
		return
	}
	delete(b.clients, client)
	close(client.send)
}

func (b *ProgressBroadcaster) readPump(client *statusClient) {
	defer b.drop(client)

	client.conn.SetReadLimit(statusReadLimit)
	_ = client.conn.SetReadDeadline(time.Now().Add(statusPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(statusPongWait))
	})

	for {
		// Inbound payloads are discarded; the read loop only exists to
		// notice disconnects and answer pings.
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *ProgressBroadcaster) writePump(client *statusClient) {
	ticker := time.NewTicker(statusPingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(statusWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(statusWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// frameFor builds the client-facing frame for an event.
func frameFor(event *Event) *StatusFrame {
	frame := &StatusFrame{
		Event:     event.Type,
		JobID:     event.JobID,
		Timestamp: event.Timestamp,
	}

	switch data := event.Data.(type) {
	case JobStartedData:
		frame.Running = true
		frame.Progress = &types.Progress{Total: data.UnitCount}
	case UnitEventData:
		frame.Running = true
		frame.UnitID = data.UnitID
		frame.Attempt = data.Attempt
		frame.UnitStatus = unitStatusFor(event.Type)
		if data.Error != nil {
			frame.ErrorMessage = data.Error.Error()
		}
		if event.Type == EventUnitCompleted || event.Type == EventUnitFailed {
			frame.Progress = &types.Progress{Current: data.Current, Total: data.Total}
		}
	default:
		// Completion, stop, and merge frames carry no progress: the run
		// is over and the job's counters have been reset to zero.
	}
	return frame
}

// unitStatusFor maps a unit lifecycle event to the status the unit holds
// after the event. A retried unit stays in flight.
func unitStatusFor(eventType EventType) types.UnitStatus {
	switch eventType {
	case EventUnitQueued:
		return types.UnitQueued
	case EventUnitStarted, EventUnitRetried:
		return types.UnitInFlight
	case EventUnitCompleted:
		return types.UnitDone
	case EventUnitFailed:
		return types.UnitFailed
	}
	return ""
}
