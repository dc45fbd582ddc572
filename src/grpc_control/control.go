package grpc_control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"market-streamer/src/analysis"
	"market-streamer/src/helpers"
	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultLookback     = 24 * time.Hour
	defaultLiveDuration = 10 * time.Second
	maxLiveDuration     = 5 * time.Minute
)

// ControlService implements ControlServer on top of the market-data service.
type ControlService struct {
	UnimplementedControlServer
	MarketData interfaces.IMarketData
	Logger     *logger.Logger
}

func NewControlService(md interfaces.IMarketData, log *logger.Logger) *ControlService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ControlService{MarketData: md, Logger: log}
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	resp := map[string]interface{}{"status": "ok"}
	if report, ok := s.MarketData.LastReport(); ok {
		resp["last_session"] = report
		if report.Error != "" {
			resp["status"] = "degraded"
		}
	}
	return toStruct(resp)
}

func (s *ControlService) ListSymbols(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	symbols, err := s.MarketData.Symbols()
	if err != nil {
		return nil, s.toStatus("ListSymbols", err)
	}
	return toStruct(map[string]interface{}{"symbols": symbols})
}

func (s *ControlService) TokenInfo(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	tok, err := s.MarketData.TokenInfo(ctx)
	if err != nil {
		return nil, s.toStatus("TokenInfo", err)
	}
	return toStruct(map[string]interface{}{
		"token":     helpers.MaskToken(tok.Token),
		"url":       tok.URL,
		"issued_at": tok.Timestamp,
	})
}

// -----------------------------------------------------------------------------

func (s *ControlService) HistoricalBars(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol, err := symbolField(req)
	if err != nil {
		return nil, err
	}
	lookback, err := durationField(req, "lookback", defaultLookback)
	if err != nil {
		return nil, err
	}
	interval, err := models.ParseTimeframe(stringField(req, "interval", string(models.M5)))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp := map[string]interface{}{"symbol": symbol, "interval": interval}
	var bars []models.MBar
	if req.GetFields()["cached"].GetBoolValue() {
		to := time.Now()
		bars, err = s.MarketData.StoredBars(symbol, interval, to.Add(-lookback), to)
	} else {
		var report models.MSessionReport
		bars, report, err = s.MarketData.HistoricalBars(ctx, symbol, lookback, interval)
		resp["report"] = report
	}
	if err != nil {
		if len(bars) > 0 {
			s.Logger.Warning("HistoricalBars %s: dropping %d partial bars: %v", symbol, len(bars), err)
		}
		return nil, s.toStatus("HistoricalBars", err)
	}

	resp["count"] = len(bars)
	resp["bars"] = bars
	resp["summary"] = analysis.SummarizeBars(bars)
	return toStruct(resp)
}

func (s *ControlService) LiveQuotes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol, err := symbolField(req)
	if err != nil {
		return nil, err
	}
	duration, err := durationField(req, "duration", defaultLiveDuration)
	if err != nil {
		return nil, err
	}
	if duration > maxLiveDuration {
		return nil, status.Errorf(codes.InvalidArgument, "duration %s exceeds the %s limit", duration, maxLiveDuration)
	}

	quotes, report, err := s.MarketData.LiveQuotes(ctx, symbol, duration)
	if err != nil {
		return nil, s.toStatus("LiveQuotes", err)
	}
	return toStruct(map[string]interface{}{
		"symbol":  symbol,
		"count":   len(quotes),
		"quotes":  quotes,
		"summary": analysis.SummarizeQuotes(quotes),
		"report":  report,
	})
}

// -----------------------------------------------------------------------------

func (s *ControlService) MarketSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol, err := symbolField(req)
	if err != nil {
		return nil, err
	}
	snap, err := s.MarketData.MarketSnapshot(ctx, symbol)
	if err != nil {
		return nil, s.toStatus("MarketSnapshot", err)
	}
	return toStruct(snap)
}

func (s *ControlService) Earnings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol, err := symbolField(req)
	if err != nil {
		return nil, err
	}
	out, err := s.MarketData.Earnings(ctx, symbol)
	if err != nil {
		return nil, s.toStatus("Earnings", err)
	}
	return toStruct(out)
}

// -----------------------------------------------------------------------------

// toStatus maps the error taxonomy onto gRPC codes.
func (s *ControlService) toStatus(method string, err error) error {
	var (
		pre       *helpers.PreconditionError
		rejected  *helpers.AuthRejectedError
		transport *helpers.TransportError
		network   *helpers.NetworkError
		database  *helpers.DatabaseError
	)

	code := codes.Internal
	switch {
	case errors.As(err, &pre):
		code = codes.FailedPrecondition
	case errors.As(err, &rejected):
		code = codes.Unauthenticated
	case errors.As(err, &transport), errors.As(err, &network), errors.As(err, &database):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}

	if code == codes.Internal || code == codes.Unavailable {
		s.Logger.Error("%s: %v", method, err)
	}
	return status.Error(code, err.Error())
}

// toStruct renders v through its JSON form so replies match the REST bodies.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding reply: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encoding reply: %v", err)
	}
	return out, nil
}

func stringField(req *structpb.Struct, key, def string) string {
	if v := req.GetFields()[key].GetStringValue(); v != "" {
		return v
	}
	return def
}

func symbolField(req *structpb.Struct) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(stringField(req, "symbol", "")))
	if symbol == "" {
		return "", status.Error(codes.InvalidArgument, "symbol is required")
	}
	return symbol, nil
}

func durationField(req *structpb.Struct, key string, def time.Duration) (time.Duration, error) {
	raw := stringField(req, key, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, status.Error(codes.InvalidArgument, fmt.Sprintf("invalid %s %q: %v", key, raw, err))
	}
	if d <= 0 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be positive", key)
	}
	return d, nil
}
