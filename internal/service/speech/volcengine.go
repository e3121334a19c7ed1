package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/agent-desk/backend/internal/logger"
	speechmodel "github.com/zhouzirui/agent-desk/backend/internal/model/speech"
)

// DefaultEndpoint 火山引擎单向流式 TTS 地址
const DefaultEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

const (
	defaultFormat     = "mp3"
	defaultSampleRate = 24000

	resourceDefault = "volc.service_type.10029"
	resourceMega    = "volc.megatts.default"
	resourceSeed    = "seed-tts-2.0"
)

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("tts text is empty")

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error)
}

// VolcengineSynthesizer 火山引擎 TTS WebSocket 客户端
type VolcengineSynthesizer struct {
	cfg    *speechmodel.SpeechConfig
	voices VoiceTable
	dialer *websocket.Dialer
	log    *zap.Logger
}

// NewVolcengineSynthesizer 创建 TTS 客户端。voices 为 nil 时使用 DefaultVoices。
func NewVolcengineSynthesizer(cfg *speechmodel.SpeechConfig, voices VoiceTable, log *zap.Logger) *VolcengineSynthesizer {
	if cfg == nil {
		cfg = &speechmodel.SpeechConfig{}
	}
	if voices == nil {
		voices = DefaultVoices()
	}
	return &VolcengineSynthesizer{
		cfg:    cfg,
		voices: voices,
		dialer: &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		log:    logger.OrNop(log).Named("tts"),
	}
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
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

// Synthesize 合成语音。未指定 Voice 时按 Language 从语音映射中选择发音人，
// 资源 ID 与发音人不匹配时依次尝试候选资源与默认发音人。
func (s *VolcengineSynthesizer) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	appKey, accessKey, err := resolveCredentials(s.cfg)
	if err != nil {
		return nil, err
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	format := s.format(req.Format)
	speaker := strings.TrimSpace(req.Voice)
	if speaker == "" {
		speaker = s.voices.Speaker(req.Language, strings.TrimSpace(s.cfg.TTSVoice))
	}

	var lastMismatch error
	for _, candidate := range speakerCandidates(speaker, s.cfg.TTSVoice) {
		for _, resource := range resourceCandidates(candidate) {
			resp, err := s.synthesizeWith(ctx, req, appKey, accessKey, candidate, format, resource)
			if err == nil {
				return resp, nil
			}
			if !isResourceMismatch(err) {
				return nil, err
			}
			s.log.Warn("speaker/resource mismatch",
				zap.String("speaker", candidate), zap.String("resource", resource), zap.Error(err))
			lastMismatch = err
		}
	}
	if lastMismatch != nil {
		return nil, lastMismatch
	}
	return nil, fmt.Errorf("tts: no usable speaker for locale %q", req.Language)
}

func (s *VolcengineSynthesizer) endpoint() string {
	if ep := strings.TrimSpace(s.cfg.Endpoint); ep != "" {
		return ep
	}
	return DefaultEndpoint
}

func (s *VolcengineSynthesizer) format(requested string) string {
	for _, f := range []string{requested, s.cfg.Format} {
		switch f = strings.TrimSpace(f); f {
		case "", "wav":
			continue
		default:
			return f
		}
	}
	return defaultFormat
}

func (s *VolcengineSynthesizer) synthesizeWith(
	ctx context.Context,
	req *speechmodel.TTSRequest,
	appKey, accessKey, speaker, format, resource string,
) (*speechmodel.TTSResponse, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resource)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := s.dialer.DialContext(ctx, s.endpoint(), header)
	if err != nil {
		return nil, fmt.Errorf("dial tts: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			s.log.Debug("tts connected", zap.String("logid", logid))
		}
	}

	body, uid := s.buildRequest(req, speaker, format)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	compressed, err := CompressPayload(payload, GzipCompression)
	if err != nil {
		return nil, fmt.Errorf("compress tts request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, EncodeMessage(NewFullClientRequest(compressed, GzipCompression))); err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read tts response: %w", err)
		}
		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode tts frame: %w", err)
		}
		payload, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
		if err != nil {
			return nil, fmt.Errorf("decompress tts frame: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			return nil, fmt.Errorf("tts error %d: %s", msg.ErrorCode, payload)

		case AudioOnlyServerResponse:
			audio.Write(payload)

		case FullServerResponse:
			var server ttsServerMessage
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &server); err != nil {
					s.log.Debug("unparsed tts payload", zap.Error(err))
				}
			}
			if server.Code != 0 && server.Code != 3000 {
				return nil, fmt.Errorf("tts api error %d: %s", server.Code, server.Message)
			}
			if server.ReqID != "" {
				reqID = server.ReqID
			}
			if server.Addition.Duration != "" {
				if ms, err := strconv.ParseInt(server.Addition.Duration, 10, 64); err == nil {
					duration = ms
				}
			}
			if server.Data != "" {
				chunk, err := base64.StdEncoding.DecodeString(server.Data)
				if err != nil {
					return nil, fmt.Errorf("decode base64 audio: %w", err)
				}
				audio.Write(chunk)
			}
			if server.Sequence < 0 {
				msg.Header.MessageFlags |= NegativeSequenceNumber
			}

		default:
			s.log.Debug("unexpected tts frame", zap.Uint8("type", uint8(msg.Header.MessageType)))
			continue
		}

		if msg.Finished() {
			if audio.Len() == 0 {
				return nil, errors.New("tts audio is empty")
			}
			if reqID == "" {
				reqID = connectID
			}
			return &speechmodel.TTSResponse{
				SessionID: uid,
				AudioData: audio.Bytes(),
				Duration:  duration,
				Format:    format,
				RequestID: reqID,
				CreatedAt: time.Now(),
			}, nil
		}
	}
}

// buildRequest 构建火山引擎 TTS 请求体
func (s *VolcengineSynthesizer) buildRequest(req *speechmodel.TTSRequest, speaker, format string) (*ttsRequest, string) {
	body := &ttsRequest{}

	uid := strings.TrimSpace(req.SessionID)
	if uid == "" {
		uid = uuid.NewString()
	}
	body.User.UID = uid

	body.ReqParams.Speaker = speaker
	body.ReqParams.Text = req.Text
	body.ReqParams.Language = strings.TrimSpace(req.Language)
	body.ReqParams.Additions = `{"disable_markdown_filter":false}`
	body.ReqParams.AudioParams = ttsAudioParams{
		Format:          format,
		SampleRate:      defaultSampleRate,
		EnableTimestamp: true,
		SpeedRatio:      ratio(req.Speed, s.cfg.TTSSpeed),
		VolumeRatio:     ratio(req.Volume, s.cfg.TTSVolume),
	}
	return body, uid
}

// ratio 取请求值，否则取配置值；1.0 为服务端默认，不下发。
func ratio(requested, configured float32) float32 {
	v := requested
	if v <= 0 {
		v = configured
	}
	if v <= 0 || v == 1 {
		return 0
	}
	return v
}

func resourceCandidates(speaker string) []string {
	speaker = strings.TrimSpace(speaker)
	if strings.HasPrefix(speaker, "S_") {
		return []string{resourceMega}
	}
	lower := strings.ToLower(speaker)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "neptune", "mercury", "pluto", "mars"} {
		if strings.Contains(lower, hint) {
			return []string{resourceSeed, resourceDefault}
		}
	}
	return []string{resourceDefault, resourceSeed}
}

func speakerCandidates(speakers ...string) []string {
	var out []string
	for _, s := range speakers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		dup := false
		for _, existing := range out {
			if strings.EqualFold(existing, s) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
