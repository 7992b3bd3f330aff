package rest

import (
	"context"
	"log"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/jackc/pgx/v5"
)

const eventColumns = `id, title, description, date, time, location, organizer, category, city, link,
       image_urls, likes, rsvp_yes, rsvp_no, rsvp_maybe, liked_by_users, source, created_at`

func scanEvent(row pgx.Row) (model.Event, error) {
	var event model.Event
	err := row.Scan(
		&event.ID, &event.Title, &event.Description, &event.Date, &event.Time, &event.Location,
		&event.Organizer, &event.Category, &event.City, &event.Link, &event.ImageURLs, &event.Likes,
		&event.RSVP.Yes, &event.RSVP.No, &event.RSVP.Maybe, &event.LikedByUsers, &event.Source, &event.CreatedAt,
	)
	return event, err
}

func (api *API) ListEvents(ctx context.Context, city string) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + `
        FROM events
        WHERE $1 = '' OR city IS NULL OR lower(city) = $1
        ORDER BY date DESC, time ASC`

	rows, err := api.Deps.DB.Pool().Query(ctx, query, city)
	if err != nil {
		log.Println("error listing events", err)
		return nil, err
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (api *API) GetEventByID(ctx context.Context, id string) (model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	return scanEvent(api.Deps.DB.Pool().QueryRow(ctx, query, id))
}

func (api *API) CreateEvent(ctx context.Context, event model.Event) (model.Event, error) {
	imageURLs := event.ImageURLs
	if imageURLs == nil {
		imageURLs = []string{}
	}
	likedBy := event.LikedByUsers
	if likedBy == nil {
		likedBy = []model.LikedBy{}
	}

	query := `
        INSERT INTO events (id, title, description, date, time, location, organizer, category, city, link,
                            image_urls, likes, rsvp_yes, rsvp_no, rsvp_maybe, liked_by_users, source)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
        RETURNING ` + eventColumns

	created, err := scanEvent(api.Deps.DB.Pool().QueryRow(ctx, query,
		event.ID, event.Title, event.Description, event.Date, event.Time, event.Location,
		event.Organizer, event.Category, event.City, event.Link, imageURLs, event.Likes,
		event.RSVP.Yes, event.RSVP.No, event.RSVP.Maybe, likedBy, event.Source,
	))
	if err != nil {
		log.Println("error creating event", err)
		return model.Event{}, err
	}
	return created, nil
}

func (api *API) UpdateEventLikes(ctx context.Context, id string, likes int, likedBy []model.LikedBy) (model.Event, error) {
	query := `
        UPDATE events
        SET likes = $2, liked_by_users = $3
        WHERE id = $1
        RETURNING ` + eventColumns

	return scanEvent(api.Deps.DB.Pool().QueryRow(ctx, query, id, likes, likedBy))
}

func (api *API) UpdateEventRSVP(ctx context.Context, id string, rsvp model.RSVP, likes int) (model.Event, error) {
	query := `
        UPDATE events
        SET rsvp_yes = $2, rsvp_no = $3, rsvp_maybe = $4, likes = GREATEST(likes, $5)
        WHERE id = $1
        RETURNING ` + eventColumns

	return scanEvent(api.Deps.DB.Pool().QueryRow(ctx, query, id, rsvp.Yes, rsvp.No, rsvp.Maybe, likes))
}
