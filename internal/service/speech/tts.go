package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	speechmodel "github.com/mion-onsen/concierge/backend/internal/model/speech"
)

// DefaultEndpoint 单向流式合成接口。
const DefaultEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

// Client 火山引擎 TTS WebSocket 客户端，请求 24kHz 单声道 PCM。
type Client struct {
	cfg    speechmodel.VolcengineConfig
	dialer *websocket.Dialer
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Additions   string         `json:"additions,omitempty"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	EnableTimestamp bool    `json:"enable_timestamp"`
	SpeedRatio      float32 `json:"speed_ratio,omitempty"`
	VolumeRatio     float32 `json:"volume_ratio,omitempty"`
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

// NewClient creates a client. Zero values fall back to the service defaults.
func NewClient(cfg speechmodel.VolcengineConfig) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
	}
}

// Synthesize tries each speaker and resource candidate until one is accepted.
func (c *Client) Synthesize(ctx context.Context, req speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("TTS text is empty")
	}

	appKey, accessKey, err := resolveCredentials(c.cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var lastMismatch error
	for _, speaker := range speakerCandidates(req.Voice, c.cfg.Voice) {
		for _, resourceID := range resourceCandidates(speaker) {
			resp, err := c.synthesizeWith(ctx, req, appKey, accessKey, speaker, resourceID)
			if err == nil {
				return resp, nil
			}
			if !isResourceMismatch(err) {
				return nil, err
			}
			log.Printf("[tts] voice %s resource %s mismatch: %v", speaker, resourceID, err)
			lastMismatch = err
		}
	}
	return nil, fmt.Errorf("no compatible speaker or resource: %w", lastMismatch)
}

func (c *Client) synthesizeWith(ctx context.Context, req speechmodel.TTSRequest, appKey, accessKey, speaker, resourceID string) (*speechmodel.TTSResponse, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.Endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Printf("[tts] connected with logid: %s", logid)
		}
	}

	payload, err := json.Marshal(c.buildRequest(req, speaker))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}
	frame, err := Frame{
		Type:          FullClientRequest,
		Serialization: JSONSerialization,
		Payload:       payload,
	}.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var (
		audio bytes.Buffer
		reqID string
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		msg, err := ParseFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS message: %w", err)
		}
		body, err := msg.Compression.Unpack(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s payload: %w", msg.Type, err)
		}

		switch msg.Type {
		case ErrorMessage:
			return nil, fmt.Errorf("TTS error %d: %s", msg.ErrorCode, string(body))

		case AudioOnlyServerResponse:
			audio.Write(body)

		case FullServerResponse:
			if msg.Event == EventSessionFailed {
				return nil, fmt.Errorf("TTS session failed: %s", string(body))
			}
			var server ttsServerMessage
			if len(body) > 0 {
				if err := json.Unmarshal(body, &server); err != nil {
					log.Printf("[tts] failed to unmarshal response payload: %v", err)
				} else {
					if server.Code != 0 && server.Code != 3000 && server.Code != 20000000 {
						return nil, fmt.Errorf("TTS API error %d: %s", server.Code, server.Message)
					}
					if server.ReqID != "" {
						reqID = server.ReqID
					}
					if server.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(server.Data)
						if err != nil {
							return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}
			if !msg.Last() && server.Sequence >= 0 {
				continue
			}
			if audio.Len() == 0 {
				return nil, fmt.Errorf("TTS audio is empty")
			}
			if reqID == "" {
				reqID = connectID
			}
			pcm := audio.Bytes()
			return &speechmodel.TTSResponse{
				SessionID:  req.SessionID,
				PCM:        pcm,
				SampleRate: c.cfg.SampleRate,
				Duration:   time.Duration(len(pcm)/2) * time.Second / time.Duration(c.cfg.SampleRate),
				RequestID:  reqID,
				CreatedAt:  time.Now(),
			}, nil

		default:
			log.Printf("[tts] unexpected message type: %s", msg.Type)
		}
	}
}

func (c *Client) buildRequest(req speechmodel.TTSRequest, speaker string) ttsRequest {
	var out ttsRequest

	out.User.UID = strings.TrimSpace(req.SessionID)
	if out.User.UID == "" {
		out.User.UID = uuid.NewString()
	}
	out.ReqParams.Speaker = speaker
	out.ReqParams.Text = req.Text
	out.ReqParams.AudioParams = ttsAudioParams{
		Format:     "pcm",
		SampleRate: c.cfg.SampleRate,
	}

	speed := req.Speed
	if speed <= 0 {
		speed = c.cfg.Speed
	}
	if speed > 0 && speed != 1.0 {
		out.ReqParams.AudioParams.SpeedRatio = speed
	}

	volume := req.Volume
	if volume <= 0 {
		volume = c.cfg.Volume
	}
	if volume > 0 && volume != 1.0 {
		out.ReqParams.AudioParams.VolumeRatio = volume
	}

	out.ReqParams.Language = strings.TrimSpace(req.Language)
	if out.ReqParams.Language == "" {
		out.ReqParams.Language = strings.TrimSpace(c.cfg.Language)
	}

	// 回复里的 Markdown 不应被朗读。
	out.ReqParams.Additions = `{"disable_markdown_filter":false}`
	return out
}
