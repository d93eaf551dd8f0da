// Saga 补偿模式实现
// 估值失败时撤销已产生的副作用 (缓存的市场数据快照)
package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/biovalue-ai/rnpv/internal/activity"
)

// CompensationStep 补偿步骤
type CompensationStep struct {
	Name string
	Fn   func(ctx workflow.Context) error
}

// SagaCompensation Saga 补偿管理器
type SagaCompensation struct {
	steps []CompensationStep
}

// NewSagaCompensation 创建新的 Saga 补偿管理器
func NewSagaCompensation() *SagaCompensation {
	return &SagaCompensation{
		steps: make([]CompensationStep, 0),
	}
}

// AddCompensation 添加补偿步骤 (LIFO 顺序)
func (s *SagaCompensation) AddCompensation(name string, fn func(ctx workflow.Context) error) {
	// 在头部插入，确保 LIFO 顺序执行
	s.steps = append([]CompensationStep{{Name: name, Fn: fn}}, s.steps...)
}

// Execute 执行所有补偿操作, 单步失败不会中断后续步骤
func (s *SagaCompensation) Execute(ctx workflow.Context) []string {
	logger := workflow.GetLogger(ctx)

	executed := make([]string, 0, len(s.steps))
	for _, step := range s.steps {
		logger.Info("Executing compensation", "step", step.Name)

		if err := step.Fn(ctx); err != nil {
			logger.Error("Compensation failed",
				"step", step.Name,
				"error", err,
			)
			// 记录补偿失败，通知人工介入
			_ = workflow.ExecuteActivity(ctx, activity.NotifyCompensationName, step.Name, err.Error()).Get(ctx, nil)
			continue
		}
		logger.Info("Compensation completed", "step", step.Name)
		executed = append(executed, step.Name)
	}

	return executed
}

// Len 返回补偿步骤数量
func (s *SagaCompensation) Len() int {
	return len(s.steps)
}
