package service

import (
	"context"
	"fmt"
	"time"
)

// thinker is one running thinking loop
type thinker struct {
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}
}

// StartThinking begins a continuous planning loop for a chat: every few
// seconds the planner re-reads the chat and may reply again, until it
// closes the talk or the loop is stopped. Only one loop per chat may run.
func (s *HandlerService) StartThinking(ctx context.Context, chatID string, isGroup bool) error {
	s.thinkMu.Lock()
	if _, running := s.thinkers[chatID]; running {
		s.thinkMu.Unlock()
		return fmt.Errorf("thinking loop already running for %s", chatID)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	t := &thinker{
		cancel: cancel,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.thinkers[chatID] = t
	s.thinkMu.Unlock()

	go s.thinkLoop(loopCtx, chatID, isGroup, t)
	s.log.Infow("thinking loop started", "chat", chatID)
	return nil
}

// StopThinking asks the loop to finish its current pass, then force-cancels
// if it does not stop in time. No-op when no loop is running.
func (s *HandlerService) StopThinking(chatID string) {
	s.thinkMu.Lock()
	t, ok := s.thinkers[chatID]
	s.thinkMu.Unlock()
	if !ok {
		return
	}

	close(t.stop)
	select {
	case <-t.done:
	case <-time.After(thinkStopTimeout):
		s.log.Warnw("thinking loop did not stop in time, cancelling", "chat", chatID)
		t.cancel()
		<-t.done
	}
}

func (s *HandlerService) thinkLoop(ctx context.Context, chatID string, isGroup bool, t *thinker) {
	defer func() {
		t.cancel()
		s.thinkMu.Lock()
		delete(s.thinkers, chatID)
		s.thinkMu.Unlock()
		close(t.done)
		s.log.Infow("thinking loop finished", "chat", chatID)
	}()

	ticker := time.NewTicker(thinkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
		}

		if s.thinkOnce(ctx, chatID, isGroup) {
			return
		}
	}
}

// thinkOnce runs one planning pass under the chat lock. Returns true when
// the planner closed the talk.
func (s *HandlerService) thinkOnce(ctx context.Context, chatID string, isGroup bool) bool {
	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	cfg := s.configUC.ChatConfig(ctx, chatID)
	if !cfg.Enabled {
		return true
	}

	_, flowAdvice := s.heartflow.ShouldReply(chatID, isGroup, false)
	_, completed := s.runPlan(ctx, chatID, isGroup, false, cfg, s.freqUC.AdvisoryThreshold(chatID), flowAdvice)
	return completed
}
