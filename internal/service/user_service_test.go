package service

import (
	"fmt"
	"testing"

	"chatbot-rag-go/internal/model"
	"chatbot-rag-go/pkg/hash"
	"chatbot-rag-go/pkg/token"

	"gorm.io/gorm"
)

type fakeUserRepo struct {
	users  map[string]*model.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (r *fakeUserRepo) Create(user *model.User) error {
	r.nextID++
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", r.nextID)
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) FindByUsername(username string) (*model.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) FindByID(userID string) (*model.User, error) {
	user, ok := r.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *fakeUserRepo) FindWithPagination(offset, limit int) ([]model.User, int64, error) {
	var result []model.User
	for _, user := range r.users {
		result = append(result, *user)
	}
	return result, int64(len(result)), nil
}

func (r *fakeUserRepo) Update(user *model.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) Delete(userID string) error {
	delete(r.users, userID)
	return nil
}

func newUserFixture() (UserService, *fakeUserRepo, *token.JWTManager) {
	userRepo := newFakeUserRepo()
	jwtManager := token.NewJWTManager("test-secret", 1, 7)
	return NewUserService(userRepo, jwtManager), userRepo, jwtManager
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, jwtManager := newUserFixture()

	user, err := svc.Register("alice", "password123", model.RoleUser)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.PasswordHash == "password123" {
		t.Fatal("密码不应明文存储")
	}
	if !user.IsActive {
		t.Fatal("新用户应默认启用")
	}

	accessToken, refreshToken, err := svc.Login("alice", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := jwtManager.VerifyToken(accessToken)
	if err != nil {
		t.Fatalf("access token 校验失败: %v", err)
	}
	if claims.Username != "alice" || claims.Role != model.RoleUser {
		t.Fatalf("claims = %+v", claims)
	}
	if _, err := jwtManager.VerifyToken(refreshToken); err != nil {
		t.Fatalf("refresh token 校验失败: %v", err)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, _, _ := newUserFixture()
	if _, err := svc.Register("alice", "pw", model.RoleUser); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register("alice", "pw2", model.RoleUser); err == nil {
		t.Fatal("重复用户名应注册失败")
	}
}

func TestRegisterCoercesUnknownRole(t *testing.T) {
	svc, _, _ := newUserFixture()
	user, err := svc.Register("bob", "pw", "superuser")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Role != model.RoleUser {
		t.Fatalf("未知角色应降级为普通用户, 实际 %q", user.Role)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newUserFixture()
	_, _ = svc.Register("alice", "correct", model.RoleUser)

	if _, _, err := svc.Login("alice", "wrong"); err == nil {
		t.Fatal("错误密码应登录失败")
	}
	if _, _, err := svc.Login("nobody", "whatever"); err == nil {
		t.Fatal("不存在的用户应登录失败")
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	svc, userRepo, _ := newUserFixture()
	user, _ := svc.Register("alice", "pw", model.RoleUser)

	disabled := false
	if _, err := svc.UpdateUser(user.ID, nil, &disabled, nil); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if _, _, err := svc.Login("alice", "pw"); err == nil {
		t.Fatal("禁用账号应登录失败")
	}

	stored, _ := userRepo.FindByID(user.ID)
	if stored.IsActive {
		t.Fatal("禁用状态未持久化")
	}
}

func TestRefreshTokenIssuesNewPair(t *testing.T) {
	svc, _, jwtManager := newUserFixture()
	_, _ = svc.Register("alice", "pw", model.RoleAdmin)
	_, refreshToken, err := svc.Login("alice", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	newAccess, newRefresh, err := svc.RefreshToken(refreshToken)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	claims, err := jwtManager.VerifyToken(newAccess)
	if err != nil {
		t.Fatalf("新 access token 校验失败: %v", err)
	}
	if claims.Role != model.RoleAdmin {
		t.Fatalf("claims = %+v", claims)
	}
	if _, err := jwtManager.VerifyToken(newRefresh); err != nil {
		t.Fatalf("新 refresh token 校验失败: %v", err)
	}

	if _, _, err := svc.RefreshToken("not-a-token"); err == nil {
		t.Fatal("非法 refresh token 应失败")
	}
}

func TestUpdateUserRejectsInvalidRole(t *testing.T) {
	svc, _, _ := newUserFixture()
	user, _ := svc.Register("alice", "pw", model.RoleUser)

	badRole := "root"
	if _, err := svc.UpdateUser(user.ID, &badRole, nil, nil); err == nil {
		t.Fatal("非法角色应更新失败")
	}
}

func TestUpdateUserChangesPassword(t *testing.T) {
	svc, userRepo, _ := newUserFixture()
	user, _ := svc.Register("alice", "old-password", model.RoleUser)

	newPassword := "new-password"
	if _, err := svc.UpdateUser(user.ID, nil, nil, &newPassword); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	stored, _ := userRepo.FindByID(user.ID)
	if !hash.CheckPasswordHash("new-password", stored.PasswordHash) {
		t.Fatal("新密码校验失败")
	}
	if hash.CheckPasswordHash("old-password", stored.PasswordHash) {
		t.Fatal("旧密码不应继续有效")
	}
}

func TestDeleteUser(t *testing.T) {
	svc, userRepo, _ := newUserFixture()
	user, _ := svc.Register("alice", "pw", model.RoleUser)

	if err := svc.DeleteUser(user.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := userRepo.FindByID(user.ID); err == nil {
		t.Fatal("用户应已删除")
	}
	if err := svc.DeleteUser(user.ID); err == nil {
		t.Fatal("删除不存在的用户应返回错误")
	}
}
