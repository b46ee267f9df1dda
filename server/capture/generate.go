package capture

//go:generate mockgen -destination=mocks/mock_capture.go -package=mocks github.com/mattermost/mattermost-plugin-guardian/server/capture Device,Stream,Track,Recording
