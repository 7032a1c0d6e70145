package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/traffical/traffical-go/pkg/credentials"
	"github.com/traffical/traffical-go/pkg/presenter"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an API key in the credentials file",
	Long: `Store an API key in ~/.traffical/credentials under a profile. The key is read
from --api-key, or from standard input when the flag is omitted.`,
	Run: func(cmd *cobra.Command, args []string) {
		apiKey, _ := cmd.Flags().GetString("api-key")
		baseURL, _ := cmd.Flags().GetString("base-url")

		store, err := credentials.DefaultStore()
		if err != nil {
			presenter.Error(err, "Failed to locate credentials file")
			os.Exit(1)
		}

		if apiKey == "" {
			presenter.Info("Paste your Traffical API key:")
			apiKey, err = readKey(cmd.InOrStdin())
			if err != nil {
				presenter.Error(err, "Failed to read API key")
				os.Exit(1)
			}
		}

		profile := viper.GetString("profile")
		if err := runLogin(store, profile, credentials.Profile{APIKey: apiKey, BaseURL: baseURL}); err != nil {
			presenter.Error(err, "Login failed")
			os.Exit(1)
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove a profile from the credentials file",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := credentials.DefaultStore()
		if err != nil {
			presenter.Error(err, "Failed to locate credentials file")
			os.Exit(1)
		}

		profile := viper.GetString("profile")
		if profile == "" {
			profile = credentials.DefaultProfile
		}
		if err := store.Remove(profile); err != nil {
			presenter.Error(err, "Logout failed")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Removed profile %s from %s", profile, store.Path()))
	},
}

func readKey(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runLogin(store *credentials.Store, profile string, p credentials.Profile) error {
	if p.APIKey == "" {
		return errors.New("API key is empty")
	}
	if profile == "" {
		profile = credentials.DefaultProfile
	}
	if err := store.Save(profile, p); err != nil {
		return err
	}
	presenter.Success(fmt.Sprintf("Saved %s as profile %s in %s", credentials.Mask(p.APIKey), profile, store.Path()))
	return nil
}
