package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"devicegate/internal/models"
)

var (
	baseURL  string
	adminKey string
)

type Response struct {
	Message string                `json:"message"`
	Users   []models.User         `json:"users,omitempty"`
	Logs    []models.AuthLogEntry `json:"logs,omitempty"`
}

func init() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "Error loading .env file")
	}

	baseURL = os.Getenv("BASE_URL")
	adminKey = os.Getenv("ADMIN_KEY")

	if baseURL == "" || adminKey == "" {
		fmt.Fprintln(os.Stderr, "BASE_URL and ADMIN_KEY must be set in .env file")
		os.Exit(1)
	}
}

func main() {
	var device string

	authCmd := &cobra.Command{
		Use:   "auth [userId]",
		Short: "Authenticate a user with a device ID",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if device == "" {
				device = uuid.NewString()
				fmt.Println("Generated device ID:", device)
			}
			authenticate(args[0], device)
		},
	}
	authCmd.Flags().StringVarP(&device, "device", "d", "", "device ID to present (generated if empty)")

	rootCmd := &cobra.Command{Use: "devicegate"}
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "create [userId]",
			Short: "Create a new user",
			Args:  cobra.ExactArgs(1),
			Run:   func(cmd *cobra.Command, args []string) { executeRequest("POST", "/user", args[0]) },
		},
		&cobra.Command{
			Use:   "delete [userId]",
			Short: "Delete a user",
			Args:  cobra.ExactArgs(1),
			Run:   func(cmd *cobra.Command, args []string) { executeRequest("DELETE", "/user", args[0]) },
		},
		&cobra.Command{
			Use:   "reset [userId]",
			Short: "Reset user device binding",
			Args:  cobra.ExactArgs(1),
			Run:   func(cmd *cobra.Command, args []string) { executeRequest("PUT", "/user", args[0]) },
		},
		&cobra.Command{
			Use:   "list",
			Short: "List all users",
			Run:   func(cmd *cobra.Command, args []string) { executeRequest("POST", "/users", "") },
		},
		&cobra.Command{
			Use:   "auth-logs [userId]",
			Short: "Get auth logs for a user",
			Args:  cobra.ExactArgs(1),
			Run:   func(cmd *cobra.Command, args []string) { getAuthLogs(args[0]) },
		},
		authCmd,
	)
	rootCmd.Execute()
}

func doRequest(method, url string, payload map[string]string) (*Response, error) {
	requestBody, _ := json.Marshal(payload)

	req, err := http.NewRequest(method, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}
	return &response, nil
}

func executeRequest(method, path, userId string) {
	response, err := doRequest(method, baseURL+path, map[string]string{
		"userId":  userId,
		"authKey": adminKey,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}

	if response.Message != "" {
		fmt.Println("Response:", response.Message)
	}

	if len(response.Users) > 0 {
		fmt.Println("Users:")
		for _, user := range response.Users {
			fmt.Println("\t" + user.UserID)
		}
	}
}

func authenticate(userId, deviceId string) {
	response, err := doRequest("POST", baseURL+"/auth", map[string]string{
		"userId":   userId,
		"deviceId": deviceId,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}

	fmt.Println("Response:", response.Message)
}

func getAuthLogs(userId string) {
	response, err := doRequest("POST", fmt.Sprintf("%s/log/auth/%s", baseURL, userId), map[string]string{
		"authKey": adminKey,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}

	if response.Message != "" {
		fmt.Println("Response:", response.Message)
	}

	if len(response.Logs) > 0 {
		fmt.Println("Auth Logs:")
		for _, log := range response.Logs {
			kstTime := convertToKST(log.Timestamp)
			fmt.Printf("\tUserID: %s\n\tMessage: %s\n\tTimestamp (KST): %s\n\tDeviceID: %s\n\tSuccess: %v\n\tIP: %s\n\n",
				log.UserID, log.Message, kstTime, log.DeviceID, log.Success, log.IP)
		}
	} else {
		fmt.Println("No logs found.")
	}
}

func convertToKST(unixTimestamp string) string {
	i, err := strconv.ParseInt(unixTimestamp, 10, 64)
	if err != nil {
		return "Invalid timestamp"
	}
	t := time.Unix(i, 0)
	loc, _ := time.LoadLocation("Asia/Seoul")
	return t.In(loc).Format("2006-01-02 15:04:05 MST")
}
