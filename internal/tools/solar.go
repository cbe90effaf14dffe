package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrPredictor is returned when the prediction service fails.
var ErrPredictor = errors.New("solar predictor failed")

// SolarInput defines the device parameters for simulate_solar_cell.
// Zero values are replaced by typical TOPCon values.
type SolarInput struct {
	SiThk        float64 `json:"Si_thk,omitempty" jsonschema:"Silicon wafer thickness in um (default 180)"`
	TSiO2        float64 `json:"t_SiO2,omitempty" jsonschema:"Tunnel oxide thickness in nm (default 1.4)"`
	TPolySiRearP float64 `json:"t_polySi_rear_P,omitempty" jsonschema:"Rear p-type poly-Si thickness in nm (default 100)"`
	FrontJunc    float64 `json:"front_junc,omitempty" jsonschema:"Front junction depth in um (default 0.5)"`
	RearJunc     float64 `json:"rear_junc,omitempty" jsonschema:"Rear junction depth in um (default 0.5)"`
	ResistRear   float64 `json:"resist_rear,omitempty" jsonschema:"Rear contact resistance in ohm cm2 (default 100)"`
	NdTop        float64 `json:"Nd_top,omitempty" jsonschema:"Front doping concentration in cm-3 (default 1e20)"`
	NdRear       float64 `json:"Nd_rear,omitempty" jsonschema:"Rear doping concentration in cm-3 (default 1e20)"`
	NtPolySiTop  float64 `json:"Nt_polySi_top,omitempty" jsonschema:"Front poly-Si trap density in cm-3 (default 1e20)"`
	NtPolySiRear float64 `json:"Nt_polySi_rear,omitempty" jsonschema:"Rear poly-Si trap density in cm-3 (default 1e20)"`
	DitSiSiOx    float64 `json:"Dit_Si_SiOx,omitempty" jsonschema:"Si/SiOx interface trap density in cm-2 (default 1e10)"`
	DitSiOxPoly  float64 `json:"Dit_SiOx_Poly,omitempty" jsonschema:"SiOx/poly-Si interface trap density in cm-2 (default 1e10)"`
	DitTop       float64 `json:"Dit_top,omitempty" jsonschema:"Front surface trap density in cm-2 (default 1e10)"`
}

// DefaultSolarInput returns the typical device used for omitted parameters.
func DefaultSolarInput() SolarInput {
	return SolarInput{
		SiThk:        180,
		TSiO2:        1.4,
		TPolySiRearP: 100,
		FrontJunc:    0.5,
		RearJunc:     0.5,
		ResistRear:   100,
		NdTop:        1e20,
		NdRear:       1e20,
		NtPolySiTop:  1e20,
		NtPolySiRear: 1e20,
		DitSiSiOx:    1e10,
		DitSiOxPoly:  1e10,
		DitTop:       1e10,
	}
}

// WithDefaults fills zero fields from DefaultSolarInput.
func (in SolarInput) WithDefaults() SolarInput {
	def := DefaultSolarInput()
	fill := func(v *float64, d float64) {
		if *v == 0 {
			*v = d
		}
	}
	fill(&in.SiThk, def.SiThk)
	fill(&in.TSiO2, def.TSiO2)
	fill(&in.TPolySiRearP, def.TPolySiRearP)
	fill(&in.FrontJunc, def.FrontJunc)
	fill(&in.RearJunc, def.RearJunc)
	fill(&in.ResistRear, def.ResistRear)
	fill(&in.NdTop, def.NdTop)
	fill(&in.NdRear, def.NdRear)
	fill(&in.NtPolySiTop, def.NtPolySiTop)
	fill(&in.NtPolySiRear, def.NtPolySiRear)
	fill(&in.DitSiSiOx, def.DitSiSiOx)
	fill(&in.DitSiOxPoly, def.DitSiOxPoly)
	fill(&in.DitTop, def.DitTop)
	return in
}

// SolarMetrics are the predicted cell characteristics.
type SolarMetrics struct {
	Vm  float64 `json:"Vm"`
	Im  float64 `json:"Im"`
	Voc float64 `json:"Voc"`
	Jsc float64 `json:"Jsc"`
	FF  float64 `json:"FF"`
	Eff float64 `json:"Eff"`
}

// Predictor calls the external solar cell prediction service.
type Predictor struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewPredictor creates a predictor client for baseURL.
func NewPredictor(baseURL string, logger *slog.Logger) *Predictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Predictor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Predict posts the device parameters and returns the predicted metrics.
func (p *Predictor) Predict(ctx context.Context, in SolarInput) (SolarMetrics, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return SolarMetrics{}, fmt.Errorf("marshal params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/solar/predict", bytes.NewReader(body))
	if err != nil {
		return SolarMetrics{}, fmt.Errorf("%w: %w", ErrPredictor, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return SolarMetrics{}, fmt.Errorf("%w: %w", ErrPredictor, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return SolarMetrics{}, fmt.Errorf("%w: status %d: %s", ErrPredictor, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Predictions *SolarMetrics `json:"predictions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SolarMetrics{}, fmt.Errorf("%w: decode response: %w", ErrPredictor, err)
	}
	if out.Predictions == nil {
		return SolarMetrics{}, fmt.Errorf("%w: response has no predictions", ErrPredictor)
	}

	p.logger.Debug("solar prediction", "eff", out.Predictions.Eff, "duration_ms", time.Since(start).Milliseconds())
	return *out.Predictions, nil
}

// solarResult is the JSON text part of a simulate_solar_cell result.
type solarResult struct {
	Parameters SolarInput   `json:"parameters"`
	Metrics    SolarMetrics `json:"metrics"`
}

// NewSolarHandler creates the simulate_solar_cell handler. The result
// carries the metrics as JSON and the JV curve as a PNG.
func NewSolarHandler(deps *Dependencies) mcp.ToolHandlerFor[SolarInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SolarInput) (*mcp.CallToolResult, any, error) {
		params := input.WithDefaults()

		m, err := deps.Predictor.Predict(ctx, params)
		if err != nil {
			deps.logger().Error("solar prediction failed", "error", err)
			return ErrorResult("Prediction failed: "+err.Error(), "Check that the predictor service is running"), nil, nil
		}

		png, err := RenderJVCurve(m)
		if err != nil {
			return ErrorResult("Could not render JV curve", ""), nil, nil
		}

		text, _ := json.MarshalIndent(solarResult{Parameters: params, Metrics: m}, "", "  ")
		deps.logger().Info("simulate_solar_cell completed", "voc", m.Voc, "jsc", m.Jsc, "eff", m.Eff)
		return ImageResult(string(text), png), nil, nil
	}
}
