package api

import (
	"context"

	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
)

type contextKey string

const (
	ctxKeyPrincipal contextKey = "principal"
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyRiskScore contextKey = "risk_score"
)

func withPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

func principalFromCtx(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(ctxKeyPrincipal).(*models.Principal)
	return p
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func requestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func withRiskScore(ctx context.Context, score int) context.Context {
	return context.WithValue(ctx, ctxKeyRiskScore, score)
}

func riskScoreFromCtx(ctx context.Context) int {
	score, _ := ctx.Value(ctxKeyRiskScore).(int)
	return score
}
