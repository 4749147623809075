package utils

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

type CustomContext struct {
	AppSource  string
	CampaignId string
}

type customContextKeyType string

const customContextKey customContextKeyType = "CUSTOM_CONTEXT"

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

// WithCustomContextFromGinRequest takes the campaign id from campaign
// routes only, elsewhere :id names trackers or pages.
func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource: appSource,
	}
	if strings.Contains(c.FullPath(), "/campaigns/:id") {
		customContext.CampaignId = c.Param("id")
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetCampaignIdFromContext(ctx context.Context) string {
	return GetContext(ctx).CampaignId
}

func SetCampaignIdInContext(ctx context.Context, campaignId string) context.Context {
	customContext := *GetContext(ctx)
	customContext.CampaignId = campaignId
	return WithCustomContext(ctx, &customContext)
}
