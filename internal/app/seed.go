package app

import (
	"context"
	"fmt"

	"github.com/vovakirdan/projectchat-server/internal/auth"
	"github.com/vovakirdan/projectchat-server/internal/store"
)

// SeedUser is a demo account created by Seed.
type SeedUser struct {
	Email string
	Name  string
	Role  store.MemberRole
}

// DefaultSeedUsers mirrors the demo team used in development.
var DefaultSeedUsers = []SeedUser{
	{Email: "alice@example.com", Name: "Alice Johnson", Role: store.MemberRoleAdmin},
	{Email: "bob@example.com", Name: "Bob Smith", Role: store.MemberRoleMember},
	{Email: "carol@example.com", Name: "Carol White", Role: store.MemberRoleMember},
}

// SeededUser pairs a created user with a token for connecting.
type SeededUser struct {
	User  *store.User
	Token string
}

// SeedResult describes what Seed created.
type SeedResult struct {
	Project *store.Project
	Users   []SeededUser
}

// Seed creates demo users and a shared project. The first user owns the project.
func Seed(ctx context.Context, st store.Store, jwtConfig *auth.JWTConfig, projectName string, users []SeedUser) (*SeedResult, error) {
	if len(users) == 0 {
		return nil, fmt.Errorf("seed needs at least one user")
	}

	authService := auth.NewService(st, jwtConfig)
	result := &SeedResult{}

	for _, u := range users {
		user, err := st.CreateUser(ctx, u.Email, u.Name)
		if err != nil {
			return nil, fmt.Errorf("create user %s: %w", u.Email, err)
		}
		token, err := authService.IssueToken(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("issue token for %s: %w", u.Email, err)
		}
		result.Users = append(result.Users, SeededUser{User: user, Token: token})
	}

	owner := result.Users[0].User
	project, err := st.CreateProject(ctx, projectName, "Demo project for realtime chat", owner.ID)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	result.Project = project

	for i, u := range result.Users[1:] {
		if err := st.AddMember(ctx, project.ID, u.User.ID, users[i+1].Role); err != nil {
			return nil, fmt.Errorf("add member %s: %w", u.User.Email, err)
		}
	}

	return result, nil
}
