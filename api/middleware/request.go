package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/internal/utils"
)

// RequestContext stores the app source, and the campaign on campaign
// routes, in the request context, then opens the request span so both end
// up as span tags.
func RequestContext(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c, appSource)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(ctx, c.Request.Method+" "+route, c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		ext.HTTPMethod.Set(span, c.Request.Method)
		ext.HTTPUrl.Set(span, route)
		if id := c.Param("id"); id != "" {
			tracing.TagEntity(span, id)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		ext.HTTPStatusCode.Set(span, uint16(status))
		if status >= 400 {
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last
			}
			tracing.TraceErr(span, err, log.Int("status", status))
		}
	}
}
