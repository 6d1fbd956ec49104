package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jakopako/leadsync/internal/log"
	"github.com/jakopako/leadsync/internal/storage"
)

type AuthCmd struct {
	Login  AuthLoginCmd  `cmd:"" help:"Store a backend token."`
	Logout AuthLogoutCmd `cmd:"" help:"Remove the stored session."`
	Status AuthStatusCmd `cmd:"" help:"Show whether a valid session is stored."`
}

type AuthLoginCmd struct {
	ConfigFlag `embed:""`
	Token      string `short:"t" help:"The bearer token issued by the backend." required:"" env:"LEADSYNC_LOGIN_TOKEN"`
	UserID     int64  `help:"The id of the user the token belongs to."`
	Name       string `help:"The name of the user."`
	Email      string `help:"The email address of the user."`
}

func (lc *AuthLoginCmd) Run() error {
	cfg, err := lc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	ctx := log.ContextWithLogger(context.Background(), slog.Default())
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	state := storage.AuthState{
		Token:           lc.Token,
		User:            storage.User{ID: lc.UserID, Name: lc.Name, Email: lc.Email},
		IsAuthenticated: true,
	}
	if err := store.Auth.Set(ctx, state); err != nil {
		return err
	}
	// reject expired tokens right away instead of on the first request
	if _, err := store.Auth.Token(ctx); err != nil {
		if cerr := store.Auth.Clear(ctx); cerr != nil {
			slog.Error(cerr.Error())
		}
		return err
	}
	slog.Info("session stored")
	return nil
}

type AuthLogoutCmd struct {
	ConfigFlag `embed:""`
}

func (lc *AuthLogoutCmd) Run() error {
	cfg, err := lc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Auth.Clear(context.Background())
}

type AuthStatusCmd struct {
	ConfigFlag `embed:""`
}

func (sc *AuthStatusCmd) Run() error {
	cfg, err := sc.load()
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	ok, err := store.Auth.IsAuthenticated(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("not signed in")
		return nil
	}
	state, err := store.Auth.Get(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("signed in as %s <%s>\n", state.User.Name, state.User.Email)
	return nil
}
