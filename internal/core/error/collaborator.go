package errx

import "net/http"

// WrapChain wraps a blockchain RPC error with a consistent status code and message.
func WrapChain(err error) *Error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, ChainErrorMessage)
}

// WrapAggregator wraps a DEX aggregator error with a consistent status code and message.
func WrapAggregator(err error) *Error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, AggregatorErrorMessage)
}

// WrapNews wraps a news feed error with a consistent status code and message.
func WrapNews(err error) *Error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, NewsErrorMessage)
}
