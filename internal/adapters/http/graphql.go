package http

import (
	"errors"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/halalchain/halalmap/internal/core/domain"
)

// timeField resolves a *time.Time struct field as an RFC 3339 string.
func timeField(get func(domain.Restaurant) *time.Time) *graphql.Field {
	return &graphql.Field{
		Type: graphql.String,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			var r domain.Restaurant
			switch src := p.Source.(type) {
			case domain.Restaurant:
				r = src
			case *domain.Restaurant:
				r = *src
			default:
				return nil, nil
			}
			if t := get(r); t != nil {
				return t.UTC().Format(time.RFC3339), nil
			}
			return nil, nil
		},
	}
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	scanType := graphql.NewObject(graphql.ObjectConfig{
		Name: "QRScan",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.String},
			"location": &graphql.Field{Type: graphql.String},
			"device":   &graphql.Field{Type: graphql.String},
			"scanned_at": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if s, ok := p.Source.(domain.QRScan); ok {
						return s.ScannedAt.UTC().Format(time.RFC3339), nil
					}
					return nil, nil
				},
			},
		},
	})

	restaurantType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Restaurant",
		Fields: graphql.Fields{
			"id":                &graphql.Field{Type: graphql.String},
			"name":              &graphql.Field{Type: graphql.String},
			"address":           &graphql.Field{Type: graphql.String},
			"province":          &graphql.Field{Type: graphql.String},
			"cuisine":           &graphql.Field{Type: graphql.String},
			"phone":             &graphql.Field{Type: graphql.String},
			"open_hours":        &graphql.Field{Type: graphql.String},
			"description":       &graphql.Field{Type: graphql.String},
			"latitude":          &graphql.Field{Type: graphql.Float},
			"longitude":         &graphql.Field{Type: graphql.Float},
			"certification_id":  &graphql.Field{Type: graphql.String},
			"issuing_authority": &graphql.Field{Type: graphql.String},
			"verified":          &graphql.Field{Type: graphql.Boolean},
			"tx_hash":           &graphql.Field{Type: graphql.String},
			"block_number":      &graphql.Field{Type: graphql.String},
			"rating":            &graphql.Field{Type: graphql.Float},
			"review_count":      &graphql.Field{Type: graphql.Int},
			"qr_scan_count":     &graphql.Field{Type: graphql.Int},
			"recent_scans":      &graphql.Field{Type: graphql.NewList(scanType)},
			"certified_date":    timeField(func(r domain.Restaurant) *time.Time { return r.CertifiedDate }),
			"expiry_date":       timeField(func(r domain.Restaurant) *time.Time { return r.ExpiryDate }),
		},
	})

	statsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Stats",
		Fields: graphql.Fields{
			"restaurants": &graphql.Field{Type: graphql.Int},
			"verified":    &graphql.Field{Type: graphql.Int},
			"pending":     &graphql.Field{Type: graphql.Int},
			"scans":       &graphql.Field{Type: graphql.Int},
		},
	})

	tileType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Tile",
		Fields: graphql.Fields{
			"x":     &graphql.Field{Type: graphql.Int},
			"y":     &graphql.Field{Type: graphql.Int},
			"z":     &graphql.Field{Type: graphql.Int},
			"world": &graphql.Field{Type: graphql.Int},
			"left":  &graphql.Field{Type: graphql.Float},
			"top":   &graphql.Field{Type: graphql.Float},
			"url":   &graphql.Field{Type: graphql.String},
		},
	})

	markerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Marker",
		Fields: graphql.Fields{
			"id":      &graphql.Field{Type: graphql.String},
			"x":       &graphql.Field{Type: graphql.Float},
			"y":       &graphql.Field{Type: graphql.Float},
			"visible": &graphql.Field{Type: graphql.Boolean},
		},
	})

	viewportType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Viewport",
		Fields: graphql.Fields{
			"center": &graphql.Field{Type: geoPointType},
			"zoom":   &graphql.Field{Type: graphql.Int},
			"width":  &graphql.Field{Type: graphql.Float},
			"height": &graphql.Field{Type: graphql.Float},
		},
	})

	statusType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MapStatus",
		Fields: graphql.Fields{
			"loading":   &graphql.Field{Type: graphql.Boolean},
			"error":     &graphql.Field{Type: graphql.String},
			"retryable": &graphql.Field{Type: graphql.Boolean},
			"total":     &graphql.Field{Type: graphql.Int},
			"verified":  &graphql.Field{Type: graphql.Int},
			"pending":   &graphql.Field{Type: graphql.Int},
		},
	})

	selectionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Selection",
		Fields: graphql.Fields{
			"focused_id": &graphql.Field{Type: graphql.String},
			"hovered_id": &graphql.Field{Type: graphql.String},
		},
	})

	frameType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MapFrame",
		Fields: graphql.Fields{
			"viewport":  &graphql.Field{Type: viewportType},
			"mode":      &graphql.Field{Type: graphql.String},
			"tiles":     &graphql.Field{Type: graphql.NewList(tileType)},
			"markers":   &graphql.Field{Type: graphql.NewList(markerType)},
			"selection": &graphql.Field{Type: selectionType},
			"focused":   &graphql.Field{Type: restaurantType},
			"status":    &graphql.Field{Type: statusType},
		},
	})

	filterArgs := func(extra graphql.FieldConfigArgument) graphql.FieldConfigArgument {
		args := graphql.FieldConfigArgument{
			"province": &graphql.ArgumentConfig{Type: graphql.String},
			"search":   &graphql.ArgumentConfig{Type: graphql.String},
			"verified": &graphql.ArgumentConfig{Type: graphql.Boolean},
		}
		for k, v := range extra {
			args[k] = v
		}
		return args
	}

	filterFrom := func(args map[string]interface{}) (domain.Filter, error) {
		var f domain.Filter
		f.Province, _ = args["province"].(string)
		f.Search, _ = args["search"].(string)
		if len(f.Search) > maxSearchLen {
			return f, errors.New("search too long (max 200 characters)")
		}
		if v, ok := args["verified"].(bool); ok {
			f.Verified = &v
		}
		return f, nil
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"restaurants": &graphql.Field{
				Type:        graphql.NewList(restaurantType),
				Description: "List restaurants matching a filter",
				Args: filterArgs(graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				}),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					f, err := filterFrom(p.Args)
					if err != nil {
						return nil, err
					}
					f.Offset, _ = p.Args["offset"].(int)
					f.Limit, _ = p.Args["limit"].(int)
					items, _, err := deps.Restaurants.List(p.Context, f)
					return items, err
				},
			},
			"restaurant": &graphql.Field{
				Type:        restaurantType,
				Description: "Get a restaurant by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					r, err := deps.Restaurants.GetByID(p.Context, id)
					if errors.Is(err, domain.ErrNotFound) {
						return nil, nil
					}
					return r, err
				},
			},
			"provinces": &graphql.Field{
				Type:        graphql.NewList(graphql.String),
				Description: "Province filter options",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Restaurants.Provinces(), nil
				},
			},
			"stats": &graphql.Field{
				Type:        statsType,
				Description: "Directory totals",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Restaurants.Stats(p.Context)
				},
			},
			"mapFrame": &graphql.Field{
				Type:        frameType,
				Description: "Tiles and markers for a viewport",
				Args: filterArgs(graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.Float},
					"lng":    &graphql.ArgumentConfig{Type: graphql.Float},
					"zoom":   &graphql.ArgumentConfig{Type: graphql.Int},
					"width":  &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: float64(defaultFrameWidth)},
					"height": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: float64(defaultFrameHeight)},
					"focus":  &graphql.ArgumentConfig{Type: graphql.String},
				}),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ctrl := controllerOf(deps)
					req := frameRequest{Center: ctrl.Home, Zoom: ctrl.HomeZoom}

					if lat, ok := p.Args["lat"].(float64); ok {
						req.Center.Lat = lat
					}
					if lng, ok := p.Args["lng"].(float64); ok {
						req.Center.Lng = lng
					}
					if !req.Center.Valid() || math.Abs(req.Center.Lat) > 90 || math.Abs(req.Center.Lng) > 180 {
						return nil, errors.New("lat must be within [-90, 90] and lng within [-180, 180]")
					}
					if z, ok := p.Args["zoom"].(int); ok {
						req.Zoom = z
					}
					req.Width, _ = p.Args["width"].(float64)
					req.Height, _ = p.Args["height"].(float64)
					if req.Width < 1 || req.Width > maxFrameSize || req.Height < 1 || req.Height > maxFrameSize {
						return nil, errors.New("width and height must be between 1 and 4096")
					}
					req.Focus, _ = p.Args["focus"].(string)

					f, err := filterFrom(p.Args)
					if err != nil {
						return nil, err
					}
					req.Filter = f
					return renderFrame(p.Context, deps, req), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
