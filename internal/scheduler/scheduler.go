package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/LJTian/NewsDigest/internal/pipeline"
)

// DefaultTimezone cron 表达式按北京时间解释
const DefaultTimezone = "Asia/Shanghai"

var (
	// ErrAlreadyRunning 上一次采集尚未结束
	ErrAlreadyRunning = errors.New("新闻收集任务正在执行中，请稍后再试")
	// ErrNotEnabled 定时任务未启用
	ErrNotEnabled = errors.New("定时任务未启用")
	// ErrAlreadyStarted 定时任务已在运行中
	ErrAlreadyStarted = errors.New("定时任务已在运行中")
)

// 支持 5 段或带秒的 6 段表达式，以及 @daily 这类描述符
var specParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSpec 校验 cron 表达式
func ValidateSpec(spec string) error {
	if _, err := specParser.Parse(spec); err != nil {
		return fmt.Errorf("无效的cron表达式 %q: %w", spec, err)
	}
	return nil
}

// Runner 执行一次完整采集
type Runner interface {
	Run(ctx context.Context) pipeline.TaskResult
}

// Options 调度器配置
type Options struct {
	Enabled  bool
	Spec     string
	Timezone string
	// StartupDelay > 0 时启动后延迟执行一轮，避免与进程启动时的其他请求争抢资源
	StartupDelay time.Duration
}

// Status 调度器状态
type Status struct {
	Enabled           bool                 `json:"enabled"`
	Running           bool                 `json:"running"`
	Executing         bool                 `json:"isExecuting"`
	CronExpression    string               `json:"cronExpression"`
	Timezone          string               `json:"timezone"`
	LastExecutionTime *time.Time           `json:"lastExecutionTime"`
	ExecutionCount    int                  `json:"executionCount"`
	NextExecutionTime *time.Time           `json:"nextExecutionTime"`
	LastResult        *pipeline.TaskResult `json:"lastResult,omitempty"`
}

type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	opts   Options
	logger *zerolog.Logger

	executing atomic.Bool

	mu             sync.Mutex
	baseCtx        context.Context
	started        bool
	entryID        cron.EntryID
	lastExecution  time.Time
	executionCount int
	lastResult     *pipeline.TaskResult
}

func New(opts Options, runner Runner, logger *zerolog.Logger) (*Scheduler, error) {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	if opts.Timezone == "" {
		opts.Timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", opts.Timezone, err)
	}
	if err := ValidateSpec(opts.Spec); err != nil {
		return nil, err
	}

	return &Scheduler{
		cron:    cron.New(cron.WithParser(specParser), cron.WithLocation(loc)),
		runner:  runner,
		opts:    opts,
		logger:  logger,
		baseCtx: context.Background(),
	}, nil
}

// Start 注册并启动定时任务；ctx 取消后定时触发的运行也随之取消
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.opts.Enabled {
		return ErrNotEnabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	id, err := s.cron.AddFunc(s.opts.Spec, s.runScheduled)
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	s.entryID = id
	s.baseCtx = ctx
	s.started = true
	s.cron.Start()

	if s.opts.StartupDelay > 0 {
		time.AfterFunc(s.opts.StartupDelay, s.runScheduled)
	}

	s.logger.Info().Str("cron", s.opts.Spec).Str("timezone", s.opts.Timezone).Msg("scheduler started")
	return nil
}

// Stop 停止定时任务，并等待正在执行的定时任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cron.Remove(s.entryID)
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// ExecuteNow 立即执行一次；已有运行在执行时返回 ErrAlreadyRunning
func (s *Scheduler) ExecuteNow(ctx context.Context) (pipeline.TaskResult, error) {
	if !s.executing.CompareAndSwap(false, true) {
		return pipeline.TaskResult{}, ErrAlreadyRunning
	}
	defer s.executing.Store(false)

	res := s.runner.Run(ctx)

	s.mu.Lock()
	s.lastExecution = time.Now()
	s.executionCount++
	s.lastResult = &res
	s.mu.Unlock()
	return res, nil
}

func (s *Scheduler) runScheduled() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	res, err := s.ExecuteNow(ctx)
	if errors.Is(err, ErrAlreadyRunning) {
		s.logger.Warn().Msg("previous collection still running, skip this trigger")
		return
	}
	s.logger.Info().Bool("success", res.Success).Str("message", res.Message).Msg("scheduled collection finished")
}

// Status 返回当前状态，下次执行时间来自 cron 的调度表
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Enabled:        s.opts.Enabled,
		Running:        s.started,
		Executing:      s.executing.Load(),
		CronExpression: s.opts.Spec,
		Timezone:       s.opts.Timezone,
		ExecutionCount: s.executionCount,
		LastResult:     s.lastResult,
	}
	if !s.lastExecution.IsZero() {
		t := s.lastExecution
		st.LastExecutionTime = &t
	}
	if s.started {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			st.NextExecutionTime = &next
		}
	}
	return st
}
