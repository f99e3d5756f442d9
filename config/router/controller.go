package router

import (
	"fmt"
	"net/http"
	"path"

	"github.com/akeren/course-waitlist-api/pkg/ratelimit"
)

// NewRESTController groups handlers under mountPoint. prepare runs once, at MountController.
func NewRESTController(name, mountPoint string, prepare func(*RouterService, *RESTController)) *RESTController {
	return &RESTController{
		name:       name,
		mountPoint: path.Clean("/" + mountPoint),
		prepare:    prepare,
	}
}

// RateLimitWith applies limiter to every handler of the controller that has no limiter of its own.
func (controller *RESTController) RateLimitWith(routerService *RouterService, limiter ratelimit.RateLimiter) *RESTController {
	routerService.bindOverrideRateLimiter(controller.mountPoint, limiter)
	return controller
}

func (controller *RESTController) fullPath(relativePath string) string {
	return path.Clean(controller.mountPoint + "/" + relativePath)
}

func routeKey(method, route string) string {
	return fmt.Sprintf("%s-%s", method, route)
}

func (routerService *RouterService) bindOverrideRateLimiter(key string, limiter ratelimit.RateLimiter) {
	if limiter == nil {
		return
	}
	if _, exists := routerService.rateLimitOverrides[key]; exists {
		panic(fmt.Sprintf("a rate limiter is already registered for %q", key))
	}
	routerService.rateLimitOverrides[key] = limiter
}

// limiterFor picks the handler limiter, then the controller limiter, then the default.
func (routerService *RouterService) limiterFor(method, route string) (ratelimit.RateLimiter, bool) {
	key := routeKey(method, route)
	controller, ok := routerService.handlerToControllerMap[key]
	if !ok || controller == nil {
		return nil, false
	}

	if limiter, ok := routerService.rateLimitOverrides[key]; ok {
		return limiter, true
	}
	if limiter, ok := routerService.rateLimitOverrides[controller.mountPoint]; ok {
		return limiter, true
	}
	return routerService.rateLimiter, true
}

func (routerService *RouterService) addHandler(
	method string,
	controller *RESTController,
	limiter ratelimit.RateLimiter,
	relativePath string,
	handler HandlerFunction,
	middlewares ...MiddlewareFunc,
) {
	fullPath := controller.fullPath(relativePath)
	key := routeKey(method, fullPath)

	if other, exists := routerService.handlerToControllerMap[key]; exists {
		panic(fmt.Sprintf("%s %s is already registered by controller %q", method, fullPath, other.name))
	}
	routerService.handlerToControllerMap[key] = controller
	routerService.bindOverrideRateLimiter(key, limiter)
	controller.handlerCount++

	routerService.engine.Handle(method, fullPath, append(middlewares, routerService.createHandler(handler))...)
	routerService.logger.Debug("Handler registered", "method", method, "path", fullPath)
}

func (routerService *RouterService) AddPostHandler(
	controller *RESTController,
	limiter ratelimit.RateLimiter,
	relativePath string,
	handler HandlerFunction,
	middlewares ...MiddlewareFunc,
) {
	routerService.addHandler(http.MethodPost, controller, limiter, relativePath, handler, middlewares...)
}

func (routerService *RouterService) AddGetHandler(
	controller *RESTController,
	limiter ratelimit.RateLimiter,
	relativePath string,
	handler HandlerFunction,
	middlewares ...MiddlewareFunc,
) {
	routerService.addHandler(http.MethodGet, controller, limiter, relativePath, handler, middlewares...)
}

func (routerService *RouterService) createHandler(handler HandlerFunction) MiddlewareFunc {
	return func(c *RequestContext) {
		result := handler(c)

		if result == nil {
			routerService.GetLogger(c).Error("Handler returned no result", "path", c.FullPath())
			result = InternalServerErrorResult("Internal Server Error")
		}
		if result.IsServerError() {
			routerService.GetLogger(c).Error("Request failed", "path", c.FullPath(), "status", result.StatusCode, "message", result.Message)
		}

		c.JSON(result.StatusCode, result.ToJSON())
	}
}
