package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"

	"github.com/opaluk/terneod/terneo"
)

// stateView is the JSON shape of /api/state and the websocket/MQTT feed.
type stateView struct {
	SerialNumber       string    `json:"serialNumber"`
	Generation         string    `json:"generation"`
	Revision           uint64    `json:"revision"`
	UpdatedAt          time.Time `json:"updatedAt"`
	PowerOn            bool      `json:"powerOn"`
	Mode               string    `json:"mode"`
	Action             string    `json:"action"`
	ControlSource      string    `json:"controlSource"`
	TargetTemperature  *float64  `json:"targetTemperature"`
	CurrentTemperature *float64  `json:"currentTemperature"`
	FloorTemperature   *float64  `json:"floorTemperature"`
	AirTemperature     *float64  `json:"airTemperature,omitempty"`
	MinSetpoint        float64   `json:"minSetpoint"`
	MaxSetpoint        float64   `json:"maxSetpoint"`

	// Params is only populated when diagnostics are enabled.
	Params map[string]paramView `json:"params,omitempty"`
}

type paramView struct {
	Value  float64 `json:"value"`
	Option string  `json:"option,omitempty"`
	On     *bool   `json:"on,omitempty"`
	Raw    int64   `json:"raw"`
}

type healthView struct {
	Phase         string  `json:"phase"`
	Fresh         bool    `json:"fresh"`
	StaleForSec   float64 `json:"staleForSeconds,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	HasSnapshot   bool    `json:"hasSnapshot"`
	Generation    string  `json:"generation"`
	SnapshotAge   float64 `json:"snapshotAgeSeconds,omitempty"`
	SnapshotStamp *string `json:"snapshotUpdatedAt,omitempty"`
}

func makeStateView(sn string, snap *terneo.Snapshot, diagnostics bool) stateView {
	view := stateView{
		SerialNumber:       sn,
		Generation:         snap.Generation.String(),
		Revision:           snap.Revision,
		UpdatedAt:          snap.UpdatedAt,
		PowerOn:            snap.PowerOn(),
		Mode:               snap.EffectiveMode,
		Action:             snap.Action,
		ControlSource:      snap.ControlSource,
		TargetTemperature:  snap.TargetTemperature,
		CurrentTemperature: snap.CurrentTemperature,
		FloorTemperature:   snap.Status.FloorTemperature,
		AirTemperature:     snap.Status.AirTemperature,
		MinSetpoint:        snap.MinSetpoint,
		MaxSetpoint:        snap.MaxSetpoint,
	}
	if diagnostics {
		view.Params = make(map[string]paramView, len(snap.Params))
		for name, v := range snap.Params {
			pv := paramView{Value: v.Float, Raw: v.Raw}
			if label := v.Label(); label != "" {
				pv.Option = label
			}
			if v.Param.Kind == terneo.KindBool {
				b := v.Bool
				pv.On = &b
			}
			view.Params[name] = pv
		}
	}
	return view
}

func makeHealthView(client *terneo.Client) healthView {
	h := client.Health()
	view := healthView{
		Phase:      h.Phase.String(),
		Fresh:      h.Fresh,
		Reason:     h.Reason,
		Generation: client.Generation().String(),
	}
	if h.StaleFor > 0 {
		view.StaleForSec = h.StaleFor.Seconds()
	}
	if snap := client.Snapshot(); snap != nil {
		view.HasSnapshot = true
		view.SnapshotAge = time.Since(snap.UpdatedAt).Seconds()
		stamp := snap.UpdatedAt.Format(time.RFC3339)
		view.SnapshotStamp = &stamp
	}
	return view
}

// commandStatus maps command errors onto HTTP status codes. Validation is a
// caller mistake; everything else reflects the device or session state.
func commandStatus(err error) int {
	var verr *terneo.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, terneo.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, terneo.ErrLocalControlDisabled):
		return http.StatusForbidden
	case errors.Is(err, terneo.ErrDeviceTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func runCommand(c *gin.Context, client *terneo.Client, intent terneo.Intent) {
	if err := client.IssueCommand(c.Request.Context(), intent); err != nil {
		c.JSON(commandStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type configArgs struct {
	TargetTemperature *float64 `json:"targetTemperature"`
	Mode              string   `json:"mode"`
	Power             *bool    `json:"power"`
}

type paramArgs struct {
	Value  *float64 `json:"value"`
	Option *string  `json:"option"`
	On     *bool    `json:"on"`
}

type limitArgs struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

func launchWebserver(ctx context.Context, port int, client *terneo.Client, sn string, diagnostics bool) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	api := r.Group("/api")

	api.GET("/state", func(c *gin.Context) {
		snap := client.Snapshot()
		if snap == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": terneo.ErrNotReady.Error()})
			return
		}
		c.JSON(http.StatusOK, makeStateView(sn, snap, diagnostics))
	})

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, makeHealthView(client))
	})

	api.GET("/generation", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"generation": client.Generation().String()})
	})

	api.PUT("/config", func(c *gin.Context) {
		var args configArgs
		if err := c.Bind(&args); err != nil {
			return
		}
		// Apply independent fields as separate intents; a later rejection
		// does not undo an earlier applied write.
		if args.Power != nil {
			intent := terneo.TurnOff()
			if *args.Power {
				intent = terneo.TurnOn()
			}
			if err := client.IssueCommand(c.Request.Context(), intent); err != nil {
				c.JSON(commandStatus(err), gin.H{"error": err.Error()})
				return
			}
		}
		if args.Mode != "" {
			if err := client.IssueCommand(c.Request.Context(), terneo.SetMode(args.Mode)); err != nil {
				c.JSON(commandStatus(err), gin.H{"error": err.Error()})
				return
			}
		}
		if args.TargetTemperature != nil {
			if err := client.IssueCommand(c.Request.Context(), terneo.SetTargetTemperature(*args.TargetTemperature)); err != nil {
				c.JSON(commandStatus(err), gin.H{"error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.PUT("/param/:name", func(c *gin.Context) {
		var args paramArgs
		if err := c.Bind(&args); err != nil {
			return
		}
		name := c.Param("name")
		var intent terneo.Intent
		switch {
		case args.On != nil:
			intent = terneo.SetSwitch(name, *args.On)
		case args.Option != nil:
			intent = terneo.SetOption(name, *args.Option)
		case args.Value != nil:
			intent = terneo.SetNumber(name, *args.Value)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "one of value, option or on is required"})
			return
		}
		runCommand(c, client, intent)
	})

	api.POST("/limits/floor", func(c *gin.Context) {
		var args limitArgs
		if err := c.Bind(&args); err != nil {
			return
		}
		runCommand(c, client, terneo.SetFloorLimits(args.Lower, args.Upper))
	})

	api.POST("/limits/air", func(c *gin.Context) {
		var args limitArgs
		if err := c.Bind(&args); err != nil {
			return
		}
		runCommand(c, client, terneo.SetAirLimits(args.Lower, args.Upper))
	})

	api.POST("/restart", func(c *gin.Context) {
		if err := client.Restart(c.Request.Context()); err != nil {
			c.JSON(commandStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.GET("/ws", func(c *gin.Context) {
		h := websocket.Handler(func(ws *websocket.Conn) {
			attachListener(ws, client, sn, diagnostics)
		})
		h.ServeHTTP(c.Writer, c.Request)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("listening on :%d", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("webserver: %s", err)
	}
}

func serializeEvent(source string, data any) []byte {
	msg, err := json.Marshal(gin.H{"source": source, "data": data})
	if err != nil {
		log.Errorf("serializing %s event: %s", source, err)
		return nil
	}
	return msg
}

func attachListener(ws *websocket.Conn, client *terneo.Client, sn string, diagnostics bool) {
	listener := client.NewListener()

	defer func() {
		listener.Close()
		log.Debug("closing websocket")
		if err := ws.Close(); err != nil {
			log.Debugf("error on ws close: %s", err)
		}
	}()

	// Dump the current state so a new session starts complete.
	if snap := client.Snapshot(); snap != nil {
		if msg := serializeEvent("state", makeStateView(sn, snap, diagnostics)); msg != nil {
			if _, err := ws.Write(msg); err != nil {
				return
			}
		}
	}

	for event := range listener.Receive() {
		snap, ok := event.Data.(*terneo.Snapshot)
		if !ok {
			continue
		}
		msg := serializeEvent(event.Source, makeStateView(sn, snap, diagnostics))
		if msg == nil {
			continue
		}
		if _, err := ws.Write(msg); err != nil {
			log.Debugf("error on websocket write: %s", err)
			return
		}
	}
}
