// gRPC 健康检查
package health

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName 估值 Worker 在健康检查中使用的服务名
const ServiceName = "rnpv.ValuationWorker"

// Check 依赖检查, 返回 nil 表示健康
type Check func(ctx context.Context) error

// Server gRPC 健康检查服务
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *zap.Logger

	mu     sync.RWMutex
	checks map[string]Check
	ready  bool
}

// NewServer 创建健康检查服务, 初始状态为 NOT_SERVING
func NewServer(logger *zap.Logger) *Server {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		grpcServer: gs,
		health:     hs,
		logger:     logger.With(zap.String("component", "health")),
		checks:     make(map[string]Check),
	}
}

// AddCheck 注册依赖检查
func (s *Server) AddCheck(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Ready 最近一次检查是否全部通过
func (s *Server) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Evaluate 执行全部检查并更新服务状态
func (s *Server) Evaluate(ctx context.Context) bool {
	s.mu.RLock()
	checks := make(map[string]Check, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	s.mu.RUnlock()

	ready := true
	for name, check := range checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			ready = false
		}
	}

	status := healthpb.HealthCheckResponse_SERVING
	if !ready {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)

	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
	return ready
}

// Watch 按固定间隔执行检查, 直到 ctx 结束
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	s.Evaluate(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evaluate(ctx)
		}
	}
}

// Serve 在指定端口提供 gRPC 健康检查, 阻塞直到 Stop
func (s *Server) Serve(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on %d: %w", port, err)
	}
	s.logger.Info("Starting gRPC health server", zap.String("addr", lis.Addr().String()))
	return s.ServeListener(lis)
}

// ServeListener 使用已有监听器
func (s *Server) ServeListener(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop 关闭服务, 状态切换为 NOT_SERVING
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
