// Package kserve 通过 KServe v2 推理协议调用远端的分割模型
package kserve

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chaos-io/bgremover/rembg"
	"github.com/chaos-io/bgremover/util"
	nhttp "github.com/chaos-io/bgremover/util/http"
)

const datatypeFP32 = "FP32"

type Config struct {
	// Endpoint 推理服务地址，如 http://127.0.0.1:8000
	Endpoint   string
	ModelName  string
	InputName  string
	OutputName string
	InputSize  int
	Timeout    time.Duration
}

type Segmenter struct {
	cfg Config
	cli nhttp.IClient
}

func NewSegmenter(cfg Config, cli nhttp.IClient) *Segmenter {
	if cli == nil {
		cli = nhttp.NewHTTPClient()
	}
	return &Segmenter{cfg: cfg, cli: cli}
}

type inferTensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float32 `json:"data"`
}

type outputSpec struct {
	Name string `json:"name"`
}

type inferRequest struct {
	Inputs  []inferTensor `json:"inputs"`
	Outputs []outputSpec  `json:"outputs,omitempty"`
}

type inferResponse struct {
	ModelName string        `json:"model_name"`
	Outputs   []inferTensor `json:"outputs"`
}

func (s *Segmenter) InputSize() image.Point {
	return image.Pt(s.cfg.InputSize, s.cfg.InputSize)
}

func (s *Segmenter) inferURL() string {
	return fmt.Sprintf("%s/v2/models/%s/infer", strings.TrimRight(s.cfg.Endpoint, "/"), s.cfg.ModelName)
}

func (s *Segmenter) Segment(ctx context.Context, input *rembg.Tensor) (*rembg.Tensor, error) {
	if input == nil {
		return nil, fmt.Errorf("input tensor is nil")
	}

	req := &inferRequest{
		Inputs: []inferTensor{{
			Name:     s.cfg.InputName,
			Shape:    input.Shape[:],
			Datatype: datatypeFP32,
			Data:     input.Data,
		}},
	}
	if s.cfg.OutputName != "" {
		req.Outputs = []outputSpec{{Name: s.cfg.OutputName}}
	}

	resp := &inferResponse{}
	reqParam := &nhttp.RequestParam{
		RequestURI: s.inferURL(),
		Method:     http.MethodPost,
		Body:       req,
		Response:   resp,
		Timeout:    s.cfg.Timeout,
	}
	if err := s.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("kserve infer: %w", err)
	}

	util.Logger.Debug("kserve infer done", zap.String("model", resp.ModelName), zap.Int("outputs", len(resp.Outputs)))

	out, err := s.pickOutput(resp)
	if err != nil {
		return nil, err
	}
	return toTensor(out)
}

func (s *Segmenter) pickOutput(resp *inferResponse) (*inferTensor, error) {
	if len(resp.Outputs) == 0 {
		return nil, fmt.Errorf("kserve response has no outputs")
	}
	if s.cfg.OutputName != "" {
		for i := range resp.Outputs {
			if resp.Outputs[i].Name == s.cfg.OutputName {
				return &resp.Outputs[i], nil
			}
		}
	}
	return &resp.Outputs[0], nil
}

// toTensor 取形状的最后两维作为高宽，整理成 (1,1,H,W)
func toTensor(out *inferTensor) (*rembg.Tensor, error) {
	if len(out.Shape) < 2 {
		return nil, fmt.Errorf("unexpected output shape %v", out.Shape)
	}
	h, w := out.Shape[len(out.Shape)-2], out.Shape[len(out.Shape)-1]
	if h <= 0 || w <= 0 || len(out.Data) < h*w {
		return nil, fmt.Errorf("output data length %d does not match shape %v", len(out.Data), out.Shape)
	}
	return &rembg.Tensor{Shape: [4]int{1, 1, h, w}, Data: out.Data[:h*w]}, nil
}
