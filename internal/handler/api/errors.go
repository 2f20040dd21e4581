package api

import (
	"context"
	"errors"
	"net/http"

	domrepo "QuantLens/internal/domain/repository"
	"QuantLens/internal/services/analytics"
	"QuantLens/internal/usecase"
	xhttp "QuantLens/pkg/http"
)

// FromDomainError maps use-case and analytics errors onto API errors.
func FromDomainError(err error) *xhttp.AppError {
	var (
		appErr  *xhttp.AppError
		dataErr *analytics.InsufficientDataError
		dimErr  *analytics.InvalidDimensionsError
		histErr *analytics.InsufficientHistoryError
		fitErr  *analytics.ExternalFitError
		upErr   *usecase.UpstreamError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &dataErr):
		e := xhttp.UnprocessableError(xhttp.CodeInsufficientData, dataErr.Error())
		if dataErr.Symbol != "" {
			e.WithParam("symbol", dataErr.Symbol)
		}
		return e.WithError(err)
	case errors.As(err, &dimErr):
		return xhttp.NewAppError(xhttp.CodeInvalidDimensions, "", dimErr.Error(), http.StatusBadRequest).
			WithParam("t", dimErr.T).
			WithParam("n", dimErr.N).
			WithError(err)
	case errors.As(err, &histErr):
		return xhttp.UnprocessableError(xhttp.CodeInsufficientHistory, histErr.Error()).
			WithParam("symbol", histErr.Symbol).
			WithParam("have", histErr.Have).
			WithParam("need", histErr.Need).
			WithError(err)
	case errors.As(err, &fitErr):
		return xhttp.UpstreamError(xhttp.CodeExternalFit, fitErr.Error()).
			WithParam("stage", fitErr.Stage).
			WithParam("symbol", fitErr.Symbol).
			WithError(err)
	case errors.As(err, &upErr):
		return xhttp.UpstreamError(xhttp.CodeUpstream, "upstream "+upErr.Source+" unavailable").
			WithParam("source", upErr.Source).
			WithError(err)
	case errors.Is(err, usecase.ErrUnknownSymbol), errors.Is(err, usecase.ErrNoPriceData):
		return xhttp.NotFoundErrorf("%v", err).WithError(err)
	case errors.Is(err, domrepo.ErrSnapshotNotFound):
		return xhttp.NotFoundErrorf("no snapshot has been computed yet").WithError(err)
	case errors.Is(err, usecase.ErrRefreshInProgress):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.UnavailableError("analysis timed out").WithError(err)
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}
