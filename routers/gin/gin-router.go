package ginrestless

import (
	"net/http"

	"github.com/gin-gonic/gin"

	restless "github.com/ajite/flask-restless-ng"
)

// RouteHandler mounts every registered model of the handler onto the gin
// engine. Endpoints a model does not configure answer with an endpoint
// forbidden error instead of a gin 404, matching the JSON API error shape
// of the rest of the API.
func RouteHandler(router *gin.Engine, handler *restless.APIHandler) error {
	for collection, model := range handler.ModelHandlers {
		base := handler.URLs.BasePath() + "/" + collection

		// CREATE
		if model.Create != nil {
			router.POST(base, wrap(model.Create, handler.HandleCreate(model)))
		} else {
			router.POST(base, gin.WrapF(handler.EndpointForbidden(model, restless.Create)))
		}

		// GET
		if model.Get != nil {
			router.GET(base+"/:id", wrap(model.Get, handler.HandleGet(model)))
		} else {
			router.GET(base+"/:id", gin.WrapF(handler.EndpointForbidden(model, restless.Get)))
		}

		// LIST
		if model.List != nil {
			router.GET(base, wrap(model.List, handler.HandleList(model)))
		} else {
			router.GET(base, gin.WrapF(handler.EndpointForbidden(model, restless.List)))
		}

		// PATCH
		if model.Patch != nil {
			router.PATCH(base+"/:id", wrap(model.Patch, handler.HandlePatch(model)))
		} else {
			router.PATCH(base+"/:id", gin.WrapF(handler.EndpointForbidden(model, restless.Patch)))
		}

		// DELETE
		if model.Delete != nil {
			router.DELETE(base+"/:id", wrap(model.Delete, handler.HandleDelete(model)))
		} else {
			router.DELETE(base+"/:id", gin.WrapF(handler.EndpointForbidden(model, restless.Delete)))
		}

		// RELATIONSHIPS
		for _, relation := range model.Schema.RelationNames() {
			relationshipPath := base + "/:id/relationships/" + relation
			if model.Get != nil {
				router.GET(relationshipPath, gin.WrapF(handler.HandleGetRelationship(model)))
			} else {
				router.GET(relationshipPath, gin.WrapF(handler.EndpointForbidden(model, restless.Get)))
			}
			router.POST(relationshipPath, gin.WrapF(handler.EndpointForbidden(model, restless.Create)))
			router.PATCH(relationshipPath, gin.WrapF(handler.EndpointForbidden(model, restless.Patch)))
			router.DELETE(relationshipPath, gin.WrapF(handler.EndpointForbidden(model, restless.Delete)))
		}
	}
	return nil
}

// wrap prefers an endpoint's custom handler over the built-in one.
func wrap(endpoint *restless.Endpoint, handlerFunc http.HandlerFunc) gin.HandlerFunc {
	if endpoint != nil && endpoint.CustomHandlerFunc != nil {
		return gin.WrapF(endpoint.CustomHandlerFunc)
	}
	return gin.WrapF(handlerFunc)
}
