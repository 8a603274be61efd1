package mocks

//go:generate mockgen -destination=./mock_backend.go -package=mocks github.com/rxtech-lab/argo-guard/pkg/marketdata Backend
