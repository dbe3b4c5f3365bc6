package api

import (
	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth"
	"sessiond/cmd/internal/auth/session"
)

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:              u.ID,
		Email:           u.Email,
		FullName:        u.FullName,
		BusinessName:    u.BusinessName,
		Address:         u.Address,
		Phone:           u.Phone,
		ProfileImageURL: u.ProfileImageURL,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func toAuthResponse(res auth.Result) authResponse {
	return authResponse{
		ID:           res.User.ID,
		User:         toUserResponse(res.User),
		AccessToken:  res.Session.AccessToken,
		RefreshToken: res.Session.RefreshToken,
	}
}

func toRefreshResponse(issued session.Issued) refreshResponse {
	return refreshResponse{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
	}
}

func (r updateProfileRequest) input() identity.UpdateProfileInput {
	return identity.UpdateProfileInput{
		FullName:        r.FullName,
		BusinessName:    r.BusinessName,
		Address:         r.Address,
		Phone:           r.Phone,
		ProfileImageURL: r.ProfileImageURL,
	}
}
