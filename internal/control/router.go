// Package control maps transport-neutral playback commands onto a player.
//
// The websocket signaling endpoint and the MQTT control plane both decode
// their messages into a Command and hand it to the same Router.
package control

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	streamplayout "github.com/e7canasta/stream-playout"
)

// Command names understood by the Router.
const (
	CommandPlay   = "play"
	CommandPause  = "pause"
	CommandSeek   = "seek"
	CommandStatus = "status"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Player is the part of the controller the router drives.
type Player interface {
	Play() error
	Pause() error
	SeekSeconds(seconds float64) error
	State() streamplayout.PlaybackState
	Stats() streamplayout.PlayerStats
}

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Router executes commands against one player. Safe for concurrent use since
// the player serializes its own operations.
type Router struct {
	player Player
	now    func() time.Time
}

// NewRouter creates a router for player.
func NewRouter(player Player) *Router {
	return &Router{player: player, now: time.Now}
}

// Dispatch executes cmd and returns the acknowledgement.
func (r *Router) Dispatch(cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}

	switch cmd.Command {
	case CommandPlay:
		r.apply(&resp, r.player.Play)

	case CommandPause:
		r.apply(&resp, r.player.Pause)

	case CommandSeek:
		position, err := seekPosition(cmd.Params)
		if err != nil {
			slog.Warn("control: invalid seek command", "params", cmd.Params, "error", err)
			resp.Status = StatusError
			resp.Error = err.Error()
			break
		}
		r.apply(&resp, func() error { return r.player.SeekSeconds(position) })
		if resp.Status == StatusSuccess {
			resp.Data["position_s"] = position
		}

	case CommandStatus:
		resp.Status = StatusSuccess
		resp.Data = r.status()

	default:
		resp.Status = StatusError
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	resp.Timestamp = r.now().UTC().Format(time.RFC3339Nano)
	return resp
}

func (r *Router) apply(resp *Response, op func() error) {
	if err := op(); err != nil {
		slog.Warn("control: command failed", "command", resp.CommandAck, "error", err)
		resp.Status = StatusError
		resp.Error = err.Error()
		return
	}
	resp.Status = StatusSuccess
	resp.Data = map[string]interface{}{
		"state": r.player.State().String(),
	}
}

func (r *Router) status() map[string]interface{} {
	stats := r.player.Stats()

	stages := make(map[string]interface{}, len(stats.Stages))
	for stream, st := range stats.Stages {
		stages[stream.String()] = map[string]interface{}{
			"forwarded":          st.Forwarded,
			"bytes":              st.Bytes,
			"no_sample":          st.NoSample,
			"no_buffer":          st.NoBuffer,
			"buffers_per_second": st.BuffersPerSecond,
		}
	}

	return map[string]interface{}{
		"state":         stats.State.String(),
		"uptime_s":      stats.Uptime.Seconds(),
		"seeks":         stats.Seeks,
		"seeks_failed":  stats.SeeksFailed,
		"loop_restarts": stats.LoopRestarts,
		"stages":        stages,
	}
}

// seekPosition extracts params["position_s"] as a non-negative number of
// seconds. Browsers send it as a string, JSON clients as a number.
func seekPosition(params map[string]interface{}) (float64, error) {
	raw, ok := params["position_s"]
	if !ok {
		return 0, fmt.Errorf("missing 'position_s' parameter")
	}

	var position float64
	switch v := raw.(type) {
	case float64:
		position = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid 'position_s' parameter %q (expected seconds)", v)
		}
		position = parsed
	default:
		return 0, fmt.Errorf("invalid 'position_s' parameter (expected number)")
	}

	if position < 0 || math.IsNaN(position) || math.IsInf(position, 0) {
		return 0, fmt.Errorf("'position_s' must be a non-negative number")
	}
	return position, nil
}
