package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// converseAPI is the subset of the Bedrock runtime client used here.
type converseAPI interface {
	ConverseStream(ctx context.Context, in *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Bedrock streams from AWS Bedrock's Converse API.
type Bedrock struct {
	client converseAPI
	logger *slog.Logger
}

// NewBedrock loads AWS credentials from the default chain.
func NewBedrock(ctx context.Context, region string, logger *slog.Logger) (*Bedrock, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Bedrock{client: bedrockruntime.NewFromConfig(cfg), logger: logger}, nil
}

// Name implements Provider.
func (b *Bedrock) Name() string { return "bedrock" }

// Stream implements Provider.
func (b *Bedrock) Stream(ctx context.Context, req Request) (Stream, error) {
	system, messages, err := toConverse(req.Messages)
	if err != nil {
		return nil, err
	}

	in := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(req.Model),
		Messages: messages,
		System:   system,
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(req.Temperature)),
			TopP:        aws.Float32(float32(req.TopP)),
		},
	}
	if req.MaxTokens > 0 {
		in.InferenceConfig.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools, err := toConverseTools(req.Tools)
		if err != nil {
			return nil, err
		}
		in.ToolConfig = &types.ToolConfiguration{Tools: tools}
	}

	b.logger.Debug("opening converse stream", "model", req.Model, "messages", len(messages), "tools", len(req.Tools))

	out, err := b.client.ConverseStream(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	return &converseStream{ctx: ctx, es: out.GetStream()}, nil
}

// toConverse splits system text out and merges consecutive same-role
// messages, which Converse requires to alternate.
func toConverse(msgs []Message) ([]types.SystemContentBlock, []types.Message, error) {
	var system []types.SystemContentBlock
	var out []types.Message

	for _, m := range msgs {
		if m.Role == RoleSystem {
			if m.Content != "" {
				system = append(system, &types.SystemContentBlockMemberText{Value: m.Content})
			}
			continue
		}

		role := types.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}

		blocks, err := toBlocks(m)
		if err != nil {
			return nil, nil, err
		}
		if len(blocks) == 0 {
			continue
		}

		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			continue
		}
		out = append(out, types.Message{Role: role, Content: blocks})
	}
	return system, out, nil
}

func toBlocks(m Message) ([]types.ContentBlock, error) {
	if m.Role == RoleTool {
		return []types.ContentBlock{&types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
			ToolUseId: aws.String(m.ToolCallID),
			Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Content}},
		}}}, nil
	}

	var blocks []types.ContentBlock
	if len(m.Parts) == 0 && m.Content != "" {
		blocks = append(blocks, &types.ContentBlockMemberText{Value: m.Content})
	}
	for _, p := range m.Parts {
		block, err := partBlock(p)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	for _, tc := range m.ToolCalls {
		args := tc.Arguments
		if args == nil {
			args = map[string]any{}
		}
		blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: aws.String(tc.ID),
			Name:      aws.String(tc.Name),
			Input:     document.NewLazyDocument(args),
		}})
	}
	return blocks, nil
}

func partBlock(p ContentPart) (types.ContentBlock, error) {
	if p.Type == PartText {
		return &types.ContentBlockMemberText{Value: p.Text}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s part: %w", p.Type, err)
	}
	_, sub, _ := strings.Cut(p.MIMEType, "/")

	switch p.Type {
	case PartImage:
		return &types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: types.ImageFormat(strings.ReplaceAll(sub, "jpg", "jpeg")),
			Source: &types.ImageSourceMemberBytes{Value: raw},
		}}, nil
	case PartVideo:
		return &types.ContentBlockMemberVideo{Value: types.VideoBlock{
			Format: types.VideoFormat(sub),
			Source: &types.VideoSourceMemberBytes{Value: raw},
		}}, nil
	default:
		name := p.FileName
		if name == "" {
			name = "attachment"
		}
		return &types.ContentBlockMemberDocument{Value: types.DocumentBlock{
			Format: documentFormat(p.MIMEType),
			Name:   aws.String(sanitizeDocName(name)),
			Source: &types.DocumentSourceMemberBytes{Value: raw},
		}}, nil
	}
}

func documentFormat(mime string) types.DocumentFormat {
	switch mime {
	case "application/pdf":
		return types.DocumentFormatPdf
	case "text/csv":
		return types.DocumentFormatCsv
	case "text/html":
		return types.DocumentFormatHtml
	case "text/markdown":
		return types.DocumentFormatMd
	default:
		return types.DocumentFormatTxt
	}
}

// sanitizeDocName keeps the characters Converse accepts in document names.
func sanitizeDocName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == ' ', r == '-', r == '(', r == ')', r == '[', r == ']':
			sb.WriteRune(r)
		default:
			sb.WriteRune('-')
		}
	}
	return sb.String()
}

func toConverseTools(tools []Tool) ([]types.Tool, error) {
	out := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		schema := map[string]any{"type": "object", "properties": map[string]any{}}
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", t.Name, err)
			}
		}
		out = append(out, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}})
	}
	return out, nil
}

// eventStream is the subset of the Converse event stream reader used here.
type eventStream interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

// converseStream maps Converse events to deltas. Content block indexes
// become tool call fragment indexes.
type converseStream struct {
	ctx context.Context
	es  eventStream
	cur Delta
	err error
}

func (s *converseStream) Next() bool {
	for {
		var (
			ev types.ConverseStreamOutput
			ok bool
		)
		select {
		case <-s.ctx.Done():
			s.err = s.ctx.Err()
			return false
		case ev, ok = <-s.es.Events():
		}
		if !ok {
			if err := s.es.Err(); err != nil {
				s.err = fmt.Errorf("%w: %v", ErrStreamError, err)
			}
			return false
		}

		d := converseDelta(ev)
		if d.Empty() {
			continue
		}
		s.cur = d
		return true
	}
}

func converseDelta(ev types.ConverseStreamOutput) Delta {
	var d Delta
	switch v := ev.(type) {
	case *types.ConverseStreamOutputMemberContentBlockStart:
		if tu, ok := v.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
			d.ToolCalls = []ToolCallFragment{{
				Index: int(aws.ToInt32(v.Value.ContentBlockIndex)),
				ID:    tu.Value.ToolUseId,
				Name:  tu.Value.Name,
			}}
		}
	case *types.ConverseStreamOutputMemberContentBlockDelta:
		switch delta := v.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			d.Content = delta.Value
		case *types.ContentBlockDeltaMemberReasoningContent:
			if text, ok := delta.Value.(*types.ReasoningContentBlockDeltaMemberText); ok {
				d.Reasoning = text.Value
			}
		case *types.ContentBlockDeltaMemberToolUse:
			d.ToolCalls = []ToolCallFragment{{
				Index:     int(aws.ToInt32(v.Value.ContentBlockIndex)),
				Arguments: delta.Value.Input,
			}}
		}
	case *types.ConverseStreamOutputMemberMetadata:
		if u := v.Value.Usage; u != nil {
			d.Usage = &Usage{
				InputTokens:  int64(aws.ToInt32(u.InputTokens)),
				OutputTokens: int64(aws.ToInt32(u.OutputTokens)),
			}
		}
	}
	return d
}

func (s *converseStream) Delta() Delta { return s.cur }
func (s *converseStream) Err() error   { return s.err }
func (s *converseStream) Close() error { return s.es.Close() }
