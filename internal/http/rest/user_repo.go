package rest

import (
	"context"

	"github.com/MaikZ91/liebefeld/internal/model"
	"github.com/jackc/pgx/v5"
)

const profileColumns = `username, avatar, interests, favorite_locations, last_online`

func scanProfile(row pgx.Row) (model.UserProfile, error) {
	var p model.UserProfile
	err := row.Scan(&p.Username, &p.Avatar, &p.Interests, &p.FavoriteLocations, &p.LastOnline)
	return p, err
}

func (api *API) ListUserProfiles(ctx context.Context) ([]model.UserProfile, error) {
	rows, err := api.Deps.DB.Pool().Query(ctx,
		`SELECT `+profileColumns+` FROM user_profiles ORDER BY last_online DESC NULLS LAST, username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := []model.UserProfile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (api *API) GetUserProfile(ctx context.Context, username string) (model.UserProfile, error) {
	return scanProfile(api.Deps.DB.Pool().QueryRow(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE username = $1`, username))
}

func (api *API) UpsertUserProfile(ctx context.Context, p model.UserProfile) (model.UserProfile, error) {
	interests := p.Interests
	if interests == nil {
		interests = []string{}
	}
	locations := p.FavoriteLocations
	if locations == nil {
		locations = []string{}
	}

	stmt := `
        INSERT INTO user_profiles (username, avatar, interests, favorite_locations, last_online)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (username) DO UPDATE
        SET avatar = EXCLUDED.avatar,
            interests = EXCLUDED.interests,
            favorite_locations = EXCLUDED.favorite_locations,
            last_online = NOW()
        RETURNING ` + profileColumns

	return scanProfile(api.Deps.DB.Pool().QueryRow(ctx, stmt, p.Username, p.Avatar, interests, locations))
}
