package onnx

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

// InitRuntime 加载 onnxruntime 动态库并初始化全局环境，进程内只需调用一次
func InitRuntime(libraryPath string) error {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime environment: %w", err)
	}
	return nil
}

func DestroyRuntime() {
	_ = ort.DestroyEnvironment()
}

type SessionConfig struct {
	ModelPath  string
	InputName  string
	OutputName string
	// InputSize 模型输入的边长，输入 (1,3,S,S)，输出 (1,1,S,S)
	InputSize      int
	IntraOpThreads int
}

// Session 一个 onnx 会话及其独占的输入输出张量，不能并发使用
type Session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func NewSession(cfg SessionConfig) (*Session, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	threads := cfg.IntraOpThreads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("error setting intra op threads: %w", err)
	}

	size := int64(cfg.InputSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, size, size))
	if err != nil {
		_ = inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		_ = inputTensor.Destroy()
		_ = outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &Session{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

// Run 拷贝输入、执行推理，返回输出数据的副本
func (s *Session) Run(input []float32) ([]float32, error) {
	if s.session == nil {
		return nil, fmt.Errorf("session is not initialized")
	}
	dst := s.input.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("input length %d does not match model input %d", len(input), len(dst))
	}
	copy(dst, input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	out := make([]float32, len(s.output.GetData()))
	copy(out, s.output.GetData())
	return out, nil
}

func (s *Session) Destroy() {
	if s.session != nil {
		_ = s.session.Destroy()
	}
	if s.input != nil {
		_ = s.input.Destroy()
	}
	if s.output != nil {
		_ = s.output.Destroy()
	}
}
