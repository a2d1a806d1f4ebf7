package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/core/usecases"
)

// buildSchema creates the GraphQL schema over the session registry.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	viewportType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Viewport",
		Fields: graphql.Fields{
			"center": &graphql.Field{Type: coordinateType},
			"zoom":   &graphql.Field{Type: graphql.Int},
			"mode": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(domain.ViewportState).Mode.String(), nil
				},
			},
		},
	})

	postType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Post",
		Fields: graphql.Fields{
			"post_id":       &graphql.Field{Type: graphql.String},
			"user_id":       &graphql.Field{Type: graphql.String},
			"img_id":        &graphql.Field{Type: graphql.String},
			"user_question": &graphql.Field{Type: graphql.String},
			"ai_answer":     &graphql.Field{Type: graphql.String},
			"ai_question":   &graphql.Field{Type: graphql.String},
			"object_label":  &graphql.Field{Type: graphql.String},
			"location":      &graphql.Field{Type: graphql.String},
			"latitude":      &graphql.Field{Type: graphql.Float},
			"longitude":     &graphql.Field{Type: graphql.Float},
			"is_public":     &graphql.Field{Type: graphql.Boolean},
			"post_rarity":   &graphql.Field{Type: graphql.Int},
			"date": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return formatTime(postFromSource(p.Source).CreatedAt), nil
				},
			},
		},
	})

	feedType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Feed",
		Fields: graphql.Fields{
			"key": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(domain.FeedState).Key.String(), nil
				},
			},
			"status":       &graphql.Field{Type: graphql.String},
			"error":        &graphql.Field{Type: graphql.String},
			"revalidating": &graphql.Field{Type: graphql.Boolean},
			"posts": &graphql.Field{
				Type: graphql.NewList(postType),
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					offset, limit := p.Args["offset"].(int), p.Args["limit"].(int)
					if offset < 0 {
						offset = 0
					}
					if limit <= 0 || limit > 500 {
						limit = 100
					}
					page, _ := paginate(p.Source.(domain.FeedState).Posts, offset, limit)
					return page, nil
				},
			},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Session",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"identity":         &graphql.Field{Type: graphql.String},
			"mounted":          &graphql.Field{Type: graphql.Boolean},
			"viewport":         &graphql.Field{Type: viewportType},
			"location":         &graphql.Field{Type: coordinateType},
			"feed":             &graphql.Field{Type: feedType},
			"selected_post_id": &graphql.Field{Type: graphql.String},
			"selected_post":    &graphql.Field{Type: postType},
			"notice":           &graphql.Field{Type: graphql.String},
			"version": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return int(p.Source.(usecases.SessionSnapshot).Version), nil
				},
			},
		},
	})

	// session resolves the session_id argument.
	session := func(p graphql.ResolveParams) (*usecases.MapSession, error) {
		return deps.Sessions.Get(p.Args["session_id"].(string))
	}
	sessionArg := &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}

	// mutate applies op to the session and returns its snapshot.
	mutate := func(op func(p graphql.ResolveParams, s *usecases.MapSession) error) graphql.FieldResolveFn {
		return func(p graphql.ResolveParams) (interface{}, error) {
			s, err := session(p)
			if err != nil {
				return nil, err
			}
			if err := op(p, s); err != nil {
				return nil, err
			}
			return s.Snapshot(), nil
		}
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"sessions": &graphql.Field{
				Type:        graphql.NewList(graphql.String),
				Description: "Open session ids",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Sessions.IDs(), nil
				},
			},
			"session": &graphql.Field{
				Type:        sessionType,
				Description: "Snapshot of one session",
				Args:        graphql.FieldConfigArgument{"session_id": sessionArg},
				Resolve: mutate(func(graphql.ResolveParams, *usecases.MapSession) error {
					return nil
				}),
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"setQuery": &graphql.Field{
				Type:        sessionType,
				Description: "Change scope, sort and search text",
				Args: graphql.FieldConfigArgument{
					"session_id": sessionArg,
					"scope":      &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"sort":       &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"q":          &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: mutate(func(p graphql.ResolveParams, s *usecases.MapSession) error {
					return s.SetQuery(p.Args["scope"].(string), p.Args["sort"].(string), p.Args["q"].(string))
				}),
			},
			"selectPost": &graphql.Field{
				Type: sessionType,
				Args: graphql.FieldConfigArgument{
					"session_id": sessionArg,
					"post_id":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: mutate(func(p graphql.ResolveParams, s *usecases.MapSession) error {
					return s.Select(p.Args["post_id"].(string))
				}),
			},
			"clearSelection": &graphql.Field{
				Type: sessionType,
				Args: graphql.FieldConfigArgument{"session_id": sessionArg},
				Resolve: mutate(func(_ graphql.ResolveParams, s *usecases.MapSession) error {
					return s.ClearSelection()
				}),
			},
			"pan": &graphql.Field{
				Type: sessionType,
				Args: graphql.FieldConfigArgument{
					"session_id": sessionArg,
					"lat":        &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lng":        &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: mutate(func(p graphql.ResolveParams, s *usecases.MapSession) error {
					c := domain.Coordinate{Lat: p.Args["lat"].(float64), Lng: p.Args["lng"].(float64)}
					if !c.Valid() {
						return errCoordinateRange
					}
					return s.Pan(c)
				}),
			},
			"zoom": &graphql.Field{
				Type: sessionType,
				Args: graphql.FieldConfigArgument{
					"session_id": sessionArg,
					"zoom":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: mutate(func(p graphql.ResolveParams, s *usecases.MapSession) error {
					return s.Zoom(p.Args["zoom"].(int))
				}),
			},
			"commitHandoff": &graphql.Field{
				Type:        graphql.Boolean,
				Description: "Queue a post focus for the next map mount",
				Args: graphql.FieldConfigArgument{
					"session_id":     sessionArg,
					"post_id":        &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"lat":            &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lng":            &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"use_saved_zoom": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, err := session(p)
					if err != nil {
						return nil, err
					}
					t := domain.NavigationTarget{
						PostID:       p.Args["post_id"].(string),
						Latitude:     p.Args["lat"].(float64),
						Longitude:    p.Args["lng"].(float64),
						UseSavedZoom: p.Args["use_saved_zoom"].(bool),
					}
					if err := s.CommitHandoff(p.Context, t); err != nil {
						return nil, err
					}
					return true, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

func postFromSource(src interface{}) domain.Post {
	switch p := src.(type) {
	case domain.Post:
		return p
	case *domain.Post:
		return *p
	default:
		return domain.Post{}
	}
}

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
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
