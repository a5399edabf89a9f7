package knowledge

import (
	"context"
	"errors"

	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/internal/infrastructure/messaging"
	"rag-knowledge-hub/pkg/logger"
)

// HandlerRegistrar 由 messaging.Consumer 实现
type HandlerRegistrar interface {
	RegisterHandler(msgType string, handler messaging.MessageHandler)
}

// RegisterSyncHandlers 订阅其他实例发布的索引变更
func (s *Service) RegisterSyncHandlers(r HandlerRegistrar) {
	r.RegisterHandler(messaging.EventDocumentIndexed, s.handleDocumentIndexed)
	r.RegisterHandler(messaging.EventDocumentRemoved, s.handleDocumentRemoved)
	r.RegisterHandler(messaging.EventKnowledgeReset, s.handleKnowledgeReset)
}

func (s *Service) handleDocumentIndexed(ctx context.Context, msg *messaging.Message) error {
	var ev messaging.DocumentEvent
	if err := msg.UnmarshalPayload(&ev); err != nil {
		return err
	}
	err := s.LoadDocument(ctx, ev.DocumentID)
	if errors.Is(err, retrieval.ErrDocumentNotFound) {
		// 发布后又被删除，忽略
		logger.Debug(ctx, "indexed document no longer stored", "document_id", ev.DocumentID)
		return nil
	}
	if err == nil {
		logger.Info(ctx, "document synced from peer", "document_id", ev.DocumentID, "origin", msg.Origin)
	}
	return err
}

func (s *Service) handleDocumentRemoved(ctx context.Context, msg *messaging.Message) error {
	var ev messaging.DocumentEvent
	if err := msg.UnmarshalPayload(&ev); err != nil {
		return err
	}
	remove := s.kb.RemoveDocument
	if s.opts.SharedVectorIndex {
		remove = s.kb.RemoveLocal
	}
	err := remove(ctx, ev.DocumentID)
	if errors.Is(err, retrieval.ErrDocumentNotFound) {
		return nil
	}
	return err
}

// handleKnowledgeReset 共享向量集合已由发起方清空，这里只清本地状态
func (s *Service) handleKnowledgeReset(ctx context.Context, _ *messaging.Message) error {
	if s.opts.SharedVectorIndex {
		return s.kb.ResetLocal(ctx)
	}
	return s.kb.Reset(ctx)
}
