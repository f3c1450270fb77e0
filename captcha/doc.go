// Package captcha verifies captcha tokens against a siteverify endpoint
// (hCaptcha, reCAPTCHA and Turnstile share the form-POST protocol).
package captcha
