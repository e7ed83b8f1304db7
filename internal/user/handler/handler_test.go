package handler

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	appservice "securecard/internal/application/service"
	appstore "securecard/internal/application/store/application"
	cardservice "securecard/internal/card/service"
	cardstore "securecard/internal/card/store/card"
	jwttoken "securecard/internal/jwt_token"
	otpservice "securecard/internal/otp/service"
	"securecard/internal/otp/store/challenge"
	"securecard/internal/otp/store/throttle"
	"securecard/internal/user/service"
	userstore "securecard/internal/user/store/user"
	id "securecard/pkg/domain"
	"securecard/pkg/email"
	"securecard/pkg/testutil"
)

type UserHandlerSuite struct {
	suite.Suite
	router chi.Router
	jwt    *jwttoken.JWTService
	admin  id.UserID
}

func TestUserHandlerSuite(t *testing.T) {
	suite.Run(t, new(UserHandlerSuite))
}

func (s *UserHandlerSuite) SetupTest() {
	cards := cardstore.NewInMemory()
	cardSvc := cardservice.New(cards, cards)
	otp := otpservice.New(challenge.NewInMemory(), throttle.NewInMemory(), email.NewLogSender(nil),
		otpservice.WithCodeSource(bytes.NewReader(make([]byte, 4096))),
	)
	s.jwt = jwttoken.NewJWTService("test-signing-key", "securecard-test", time.Hour)
	svc := service.New(userstore.NewInMemory(), otp, s.jwt, appservice.New(appstore.NewInMemory(), cardSvc), cardSvc,
		service.WithBcryptCost(bcrypt.MinCost),
	)
	s.admin = id.NewUserID()

	h := New(svc, nil)
	r := chi.NewRouter()
	h.RegisterPublic(r)
	h.Register(r)
	h.RegisterAdmin(r)
	s.router = r
}

func registration(emailAddr, username string) map[string]any {
	return map[string]any{
		"name":          "Asha Rao",
		"username":      username,
		"email":         emailAddr,
		"date_of_birth": "03-15-1992",
		"address":       "22 Park Street, Kolkata",
		"mobile_number": "8123456789",
		"password":      "s3cret-pass",
	}
}

func (s *UserHandlerSuite) register(emailAddr, username string) UserResponse {
	body := registration(emailAddr, username)
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", body))
	testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
	started := testutil.UnmarshalResponse[RegistrationStartedResponse](s.T(), rr)
	s.True(started.CodeDelivered)

	body["challenge_id"] = started.ChallengeID
	body["code"] = "000000"
	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register/verify", body))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[UserResponse](s.T(), rr)
}

func (s *UserHandlerSuite) TestRegisterLoginAndMe() {
	u := s.register("Asha@Example.com", "asha")
	s.Equal("asha@example.com", u.Email)
	s.Equal("1992-03-15", u.DateOfBirth)
	s.Equal("user", u.Role)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]any{
		"email":    "asha@example.com",
		"password": "s3cret-pass",
	}))
	testutil.AssertStatusOK(s.T(), rr)
	tok := testutil.UnmarshalResponse[TokenResponse](s.T(), rr)
	s.Equal("Bearer", tok.TokenType)
	claims, err := s.jwt.ValidateToken(tok.AccessToken)
	s.Require().NoError(err)
	s.Equal(u.ID, claims.UserID)

	userID, err := id.ParseUserID(u.ID)
	s.Require().NoError(err)
	rr = testutil.DoRequest(s.router, testutil.AsUser(testutil.NewRequest(s.T(), http.MethodGet, "/me"), userID, u.Email))
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("asha", testutil.UnmarshalResponse[UserResponse](s.T(), rr).Username)
}

func (s *UserHandlerSuite) TestLoginFailure() {
	s.register("asha@example.com", "asha")
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]any{
		"email":    "asha@example.com",
		"password": "wrong-pass",
	}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *UserHandlerSuite) TestRegisterValidation() {
	s.Run("bad date", func() {
		body := registration("asha@example.com", "asha")
		body["date_of_birth"] = "15/03/1992"
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "validation_error")
	})

	s.Run("bad mobile", func() {
		body := registration("asha@example.com", "asha")
		body["mobile_number"] = "12345"
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "validation_error")
	})

	s.Run("unknown field", func() {
		body := registration("asha@example.com", "asha")
		body["role"] = "admin"
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("taken email", func() {
		s.register("taken@example.com", "taken")
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register",
			registration("TAKEN@example.com", "other")))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})
}

func (s *UserHandlerSuite) TestVerifyRejectsWrongCode() {
	body := registration("asha@example.com", "asha")
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", body))
	testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
	started := testutil.UnmarshalResponse[RegistrationStartedResponse](s.T(), rr)

	body["challenge_id"] = started.ChallengeID
	body["code"] = "123456"
	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register/verify", body))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "otp_invalid")
}

func (s *UserHandlerSuite) TestAdminRoutes() {
	u := s.register("asha@example.com", "asha")
	userID, err := id.ParseUserID(u.ID)
	s.Require().NoError(err)

	rr := testutil.DoRequest(s.router, testutil.AsUser(testutil.NewRequest(s.T(), http.MethodGet, "/admin/users"), userID, u.Email))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")

	rr = testutil.DoRequest(s.router, testutil.AsAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/admin/users"), s.admin))
	testutil.AssertStatusOK(s.T(), rr)
	s.Len(testutil.UnmarshalResponse[UserListResponse](s.T(), rr).Users, 1)

	rr = testutil.DoRequest(s.router, testutil.AsAdmin(testutil.NewRequest(s.T(), http.MethodDelete, "/admin/users/"+u.ID), s.admin))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = testutil.DoRequest(s.router, testutil.AsAdmin(testutil.NewRequest(s.T(), http.MethodDelete, "/admin/users/"+u.ID), s.admin))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}
