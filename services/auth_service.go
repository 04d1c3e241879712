package services

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"saveher-server/models"
	"saveher-server/utils/errors"
)

const tokenTTL = 24 * time.Hour

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type RegisterInput struct {
	Name              string   `json:"name"`
	Email             string   `json:"email_address"`
	PhoneNumber       string   `json:"phone_number"`
	Age               int      `json:"age"`
	Income            int      `json:"income"`
	Password          string   `json:"password"`
	EmergencyContacts []string `json:"emergency_contact"`
}

func (in RegisterInput) validate() error {
	switch {
	case in.Name == "":
		return errors.NewAPIError("VALIDATION_ERROR", "Name is required", http.StatusBadRequest)
	case in.Email == "":
		return errors.NewAPIError("VALIDATION_ERROR", "Email Address is required", http.StatusBadRequest)
	case !emailPattern.MatchString(in.Email):
		return errors.NewAPIError("VALIDATION_ERROR", "Invalid Email Address", http.StatusBadRequest)
	case in.PhoneNumber == "":
		return errors.NewAPIError("VALIDATION_ERROR", "Phone Number is required", http.StatusBadRequest)
	case len(in.Password) < 6 || len(in.Password) > 12:
		return errors.NewAPIError("VALIDATION_ERROR", "Password must be between 6 and 12 characters", http.StatusBadRequest)
	case len(in.EmergencyContacts) > 2:
		return errors.NewAPIError("VALIDATION_ERROR", "At most two emergency contacts are allowed", http.StatusBadRequest)
	}
	return nil
}

// Register creates a new account and issues a token for it, so the app is
// signed in immediately after sign-up.
func (s *UserService) Register(ctx context.Context, jwtSecret string, in RegisterInput) (string, models.User, error) {
	if err := in.validate(); err != nil {
		return "", models.User{}, err
	}

	count, err := s.collection.CountDocuments(ctx, bson.M{"email_address": in.Email})
	if err != nil {
		return "", models.User{}, errors.Wrap(err, "DB_ERROR", "Failed to check existing users", http.StatusInternalServerError)
	}
	if count > 0 {
		return "", models.User{}, errors.NewAPIError("VALIDATION_ERROR", "Email is already registered", http.StatusBadRequest)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", models.User{}, errors.Wrap(err, "HASH_ERROR", "Failed to hash password", http.StatusInternalServerError)
	}

	contacts := in.EmergencyContacts
	if contacts == nil {
		contacts = []string{}
	}
	user := models.User{
		PublicID:          uuid.New().String(),
		Name:              in.Name,
		Email:             in.Email,
		PhoneNumber:       in.PhoneNumber,
		Age:               in.Age,
		Income:            in.Income,
		EmergencyContacts: contacts,
		PasswordHash:      string(passwordHash),
	}

	if _, err := s.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", models.User{}, errors.NewAPIError("VALIDATION_ERROR", "Email is already registered", http.StatusBadRequest)
		}
		return "", models.User{}, errors.Wrap(err, "DB_ERROR", "Failed to create user in database", http.StatusInternalServerError)
	}

	token, err := s.issueToken(jwtSecret, user)
	if err != nil {
		return "", models.User{}, err
	}

	s.cacheUser(ctx, user)
	return token, user, nil
}

// Login authenticates a user and returns a JWT plus the profile the app
// stores locally.
func (s *UserService) Login(ctx context.Context, jwtSecret, email, password string) (string, models.User, error) {
	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"email_address": email}).Decode(&user)
	if err != nil {
		return "", models.User{}, errors.NewAPIError("INVALID_CREDENTIALS", "Invalid email or password", http.StatusUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.User{}, errors.NewAPIError("INVALID_CREDENTIALS", "Invalid email or password", http.StatusUnauthorized)
	}

	token, err := s.issueToken(jwtSecret, user)
	if err != nil {
		return "", models.User{}, err
	}

	s.cacheUser(ctx, user)
	return token, user, nil
}

func (s *UserService) issueToken(jwtSecret string, user models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userID": user.PublicID,
		"email":  user.Email,
		"exp":    time.Now().Add(tokenTTL).Unix(),
	})
	tokenString, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", errors.Wrap(err, "JWT_ERROR", "Failed to generate token", http.StatusInternalServerError)
	}
	return tokenString, nil
}
