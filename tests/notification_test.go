package tests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plankSquatAPI/internal/types/notification"
	"plankSquatAPI/internal/types/user"
	"plankSquatAPI/services"
	"plankSquatAPI/tests/helpers"
)

// TestNotificationFlow stores a notification, reads it back, and walks it
// through the read markers. Runs only against a real database.
func TestNotificationFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	ctx := context.Background()
	userService := services.NewUserService(pool)
	svc := services.NewNotificationService(pool)

	stamp := time.Now().Format("20060102150405")
	u, err := userService.CreateUser(ctx, &user.CreateUserRequest{
		ClerkID:   "user_test_notif_" + stamp,
		Email:     "notif_" + stamp + "@test.example",
		Username:  "notif_" + stamp,
		FirstName: "Notif",
		LastName:  "Tester",
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, u.ID)

	err = svc.Notify(ctx, u.ID, notification.NotificationMissedDay,
		"Missed a day", "Day 4 was marked as missed.",
		map[string]any{"day": 4})
	require.NoError(t, err)

	list, err := svc.ListNotifications(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, 1, list.UnreadCount)

	n := list.Notifications[0]
	assert.Equal(t, notification.NotificationMissedDay, n.Type)
	assert.Equal(t, "Missed a day", n.Title)
	assert.False(t, n.IsRead)

	require.NoError(t, svc.MarkAsRead(ctx, u.ID, n.ID))

	count, err := svc.UnreadCount(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	err = svc.Notify(ctx, u.ID, notification.NotificationChallengeComplete,
		"Challenge complete", "You finished all 30 days.", nil)
	require.NoError(t, err)
	err = svc.Notify(ctx, u.ID, notification.NotificationGoalMet,
		"Goal met", "2:30 plank, goal was 2:00.", nil)
	require.NoError(t, err)

	require.NoError(t, svc.MarkAllAsRead(ctx, u.ID))
	count, err = svc.UnreadCount(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// TestRegisterDevice upserts a push token so re-registering the same token
// does not produce duplicates.
func TestRegisterDevice(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	ctx := context.Background()
	userService := services.NewUserService(pool)
	svc := services.NewNotificationService(pool)

	stamp := time.Now().Format("20060102150405")
	u, err := userService.CreateUser(ctx, &user.CreateUserRequest{
		ClerkID:   "user_test_device_" + stamp,
		Email:     "device_" + stamp + "@test.example",
		Username:  "device_" + stamp,
		FirstName: "Device",
		LastName:  "Tester",
	})
	require.NoError(t, err)

	req := &notification.RegisterDeviceRequest{Token: "fcm-token-" + stamp, Platform: "android"}
	require.NoError(t, svc.RegisterDevice(ctx, u.ID, req))
	require.NoError(t, svc.RegisterDevice(ctx, u.ID, req))

	var tokens int
	err = pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM device_tokens WHERE user_id = $1", u.ID).Scan(&tokens)
	require.NoError(t, err)
	assert.Equal(t, 1, tokens)
}
