// Package notion implements the source-side client for the Notion REST API.
//
// Every network call goes through the shared connector/http client, so it is
// retried with a fixed backoff and paced between pages. When the retry ceiling is
// reached the client logs the failure and returns an empty result instead of an
// error; callers treat an empty result as "nothing to sync".
//
// Property values are translated by the codec package; DecodePropertyValue and
// EncodeProperty are thin delegates kept here so callers only need one import.
package notion
